package services

import (
	"testing"

	"homebudget/internal/testutil"
)

func TestRegister(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)

		user, err := svc.Register(RegisterInput{
			Email:         "Alice@Example.com",
			Password:      "password123",
			FirstName:     "Alice",
			LastName:      "Smith",
			HouseholdName: "Smith Family",
			Currency:      "eur",
		})
		testutil.AssertNoError(t, err)

		if user.ID == "" || user.HouseholdID == "" {
			t.Fatal("expected user and household IDs")
		}
		if user.Email != "alice@example.com" {
			t.Errorf("expected lowercased email, got %s", user.Email)
		}
		if user.Password == "password123" {
			t.Error("expected password to be hashed")
		}

		household, err := svc.GetHousehold(user.HouseholdID)
		testutil.AssertNoError(t, err)
		if household.Name != "Smith Family" || household.Currency != "EUR" {
			t.Errorf("unexpected household %+v", household)
		}
		if len(household.Members) != 1 || household.Members[0].ID != user.ID {
			t.Errorf("expected the user as the only member, got %d members", len(household.Members))
		}
	})

	t.Run("defaults", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)

		user, err := svc.Register(RegisterInput{Email: "bob@example.com", Password: "password123"})
		testutil.AssertNoError(t, err)

		household, err := svc.GetHousehold(user.HouseholdID)
		testutil.AssertNoError(t, err)
		if household.Name != "My Household" || household.Currency != "USD" {
			t.Errorf("unexpected household defaults %+v", household)
		}
	})

	t.Run("duplicate_email", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)

		_, err := svc.Register(RegisterInput{Email: "dup@example.com", Password: "password123"})
		testutil.AssertNoError(t, err)

		_, err = svc.Register(RegisterInput{Email: "DUP@example.com", Password: "password456"})
		testutil.AssertAppError(t, err, "DUPLICATE_EMAIL")
	})

	t.Run("missing_fields", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)

		_, err := svc.Register(RegisterInput{Password: "password123"})
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.Register(RegisterInput{Email: "carol@example.com"})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestGetUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewUserService(db)
	household := testutil.CreateTestHousehold(t, db)
	user := testutil.CreateTestUserWithEmail(t, db, household.ID, "dave@example.com")

	t.Run("by_email_case_insensitive", func(t *testing.T) {
		found, err := svc.GetUserByEmail("DAVE@example.com")
		testutil.AssertNoError(t, err)
		if found.ID != user.ID {
			t.Errorf("expected user %s, got %s", user.ID, found.ID)
		}
	})

	t.Run("by_id", func(t *testing.T) {
		found, err := svc.GetUserByID(user.ID)
		testutil.AssertNoError(t, err)
		if found.Email != "dave@example.com" {
			t.Errorf("expected dave@example.com, got %s", found.Email)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := svc.GetUserByEmail("nobody@example.com")
		testutil.AssertAppError(t, err, "USER_NOT_FOUND")

		_, err = svc.GetUserByID("00000000-0000-0000-0000-000000000000")
		testutil.AssertAppError(t, err, "USER_NOT_FOUND")
	})

	t.Run("household_missing", func(t *testing.T) {
		_, err := svc.GetHousehold("00000000-0000-0000-0000-000000000000")
		testutil.AssertAppError(t, err, "HOUSEHOLD_NOT_FOUND")
	})
}

func TestAttemptLogin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewUserService(db)
	household := testutil.CreateTestHousehold(t, db)
	testutil.CreateTestUserWithEmail(t, db, household.ID, "erin@example.com")

	t.Run("valid", func(t *testing.T) {
		user, err := svc.AttemptLogin("erin@example.com", "password123")
		testutil.AssertNoError(t, err)
		if user.LastLoginAt == nil {
			t.Error("expected last login time to be set")
		}

		reloaded, err := svc.GetUserByID(user.ID)
		testutil.AssertNoError(t, err)
		if reloaded.LastLoginAt == nil {
			t.Error("expected last login time to be persisted")
		}
	})

	t.Run("wrong_password", func(t *testing.T) {
		_, err := svc.AttemptLogin("erin@example.com", "wrong")
		testutil.AssertAppError(t, err, "INVALID_CREDENTIALS")
	})

	t.Run("unknown_email", func(t *testing.T) {
		_, err := svc.AttemptLogin("ghost@example.com", "password123")
		testutil.AssertAppError(t, err, "INVALID_CREDENTIALS")
	})
}
