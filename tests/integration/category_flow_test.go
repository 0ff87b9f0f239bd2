package integration

import (
	"fmt"
	"net/http"
	"testing"
)

func TestCategoryFlow_MergeFoldsLimitsAndTransactions(t *testing.T) {
	app := setupApp(t)
	token, _, _ := app.registerUser(t, "merge@test.com", "password123")

	restaurants := app.createCategory(t, token, "Restaurants", "150")
	dining := app.createCategory(t, token, "Dining", "100")
	app.createTemplate(t, token, map[string]string{restaurants: "150", dining: "100"})

	// Step 1: Record spending against the category that goes away
	var txID string
	for i, amount := range []string{"25", "40"} {
		rec := app.request("POST", "/api/v1/transactions",
			fmt.Sprintf(`{"category_id":%q,"amount":%q,"description":"meal %d"}`, restaurants, amount, i), token)
		expectStatus(t, rec, http.StatusCreated)
		txID = parseJSON(t, rec)["transaction"].(map[string]interface{})["id"].(string)
	}

	// Step 2: Merge Restaurants into Dining
	rec := app.request("POST", fmt.Sprintf("/api/v1/categories/%s/merge", restaurants),
		fmt.Sprintf(`{"target_id":%q}`, dining), token)
	expectStatus(t, rec, http.StatusOK)
	merge := parseJSON(t, rec)
	if merge["transactions_moved"].(float64) != 2 {
		t.Errorf("expected 2 transactions moved, got %v", merge["transactions_moved"])
	}
	if merge["template_version"].(float64) != 2 {
		t.Errorf("expected template version 2, got %v", merge["template_version"])
	}

	// Step 3: The template holds the combined limit under Dining only
	rec = app.request("GET", "/api/v1/budget-template", "", token)
	expectStatus(t, rec, http.StatusOK)
	tmpl := parseJSON(t, rec)["template"].(map[string]interface{})
	if got := limitOf(t, tmpl, dining); got != "250" {
		t.Errorf("expected Dining at 250, got %s", got)
	}
	if _, still := tmpl["categories"].(map[string]interface{})[restaurants]; still {
		t.Error("merged category should leave the template")
	}

	// Step 4: Transactions remember where they came from
	rec = app.request("GET", "/api/v1/transactions/"+txID, "", token)
	expectStatus(t, rec, http.StatusOK)
	tx := parseJSON(t, rec)["transaction"].(map[string]interface{})
	if tx["category_id"] != dining || tx["original_category_id"] != restaurants {
		t.Errorf("expected move to Dining from Restaurants, got %v -> %v", tx["original_category_id"], tx["category_id"])
	}
	if tx["category_change_reason"] != "category_merged" {
		t.Errorf("expected category_merged, got %v", tx["category_change_reason"])
	}

	rec = app.request("GET", fmt.Sprintf("/api/v1/categories/%s/transactions", dining), "", token)
	expectStatus(t, rec, http.StatusOK)
	if total := parseJSON(t, rec)["total_items"].(float64); total != 2 {
		t.Errorf("expected 2 transactions under Dining, got %v", total)
	}

	// Step 5: The source stays readable as a tombstone and shows up in lineage
	rec = app.request("GET", "/api/v1/categories/"+restaurants, "", token)
	expectStatus(t, rec, http.StatusOK)
	source := parseJSON(t, rec)["category"].(map[string]interface{})
	if source["deleted_reason"] != "merged" || source["merged_into_id"] != dining {
		t.Errorf("unexpected tombstone %v", source)
	}

	rec = app.request("GET", fmt.Sprintf("/api/v1/categories/%s/lineage", dining), "", token)
	expectStatus(t, rec, http.StatusOK)
	merged := parseJSON(t, rec)["merged_category_ids"].([]interface{})
	if len(merged) != 1 || merged[0] != restaurants {
		t.Errorf("expected lineage [%s], got %v", restaurants, merged)
	}

	// Step 6: The name is free again and a self merge is rejected
	app.createCategory(t, token, "Restaurants", "0")
	rec = app.request("POST", fmt.Sprintf("/api/v1/categories/%s/merge", dining),
		fmt.Sprintf(`{"target_id":%q}`, dining), token)
	expectStatus(t, rec, http.StatusBadRequest)
	if code := errorCode(t, rec); code != "SELF_MERGE" {
		t.Errorf("expected SELF_MERGE, got %s", code)
	}
}

func TestCategoryFlow_DeleteRequiresReassignWhenInUse(t *testing.T) {
	app := setupApp(t)
	token, _, _ := app.registerUser(t, "delete@test.com", "password123")

	hobbies := app.createCategory(t, token, "Hobbies", "50")
	misc := app.createCategory(t, token, "Misc", "20")
	app.createTemplate(t, token, map[string]string{hobbies: "50", misc: "20"})

	rec := app.request("POST", "/api/v1/transactions",
		fmt.Sprintf(`{"category_id":%q,"amount":"12.50","date":"2031-02-03"}`, hobbies), token)
	expectStatus(t, rec, http.StatusCreated)

	rec = app.request("DELETE", "/api/v1/categories/"+hobbies, "", token)
	expectStatus(t, rec, http.StatusConflict)
	if code := errorCode(t, rec); code != "CATEGORY_IN_USE" {
		t.Errorf("expected CATEGORY_IN_USE, got %s", code)
	}

	rec = app.request("DELETE", fmt.Sprintf("/api/v1/categories/%s?reassign_to=%s", hobbies, misc), "", token)
	expectStatus(t, rec, http.StatusOK)

	rec = app.request("GET", "/api/v1/budget-template", "", token)
	expectStatus(t, rec, http.StatusOK)
	tmpl := parseJSON(t, rec)["template"].(map[string]interface{})
	if _, still := tmpl["categories"].(map[string]interface{})[hobbies]; still {
		t.Error("deleted category should leave the template")
	}
	if got := limitOf(t, tmpl, misc); got != "20" {
		t.Errorf("reassign must not touch limits, got Misc %s", got)
	}

	rec = app.request("GET", fmt.Sprintf("/api/v1/categories/%s/transactions", misc), "", token)
	expectStatus(t, rec, http.StatusOK)
	if total := parseJSON(t, rec)["total_items"].(float64); total != 1 {
		t.Errorf("expected the transaction under Misc, got %v", total)
	}
}

func TestCategoryFlow_DeactivatedCategoriesRejectSpending(t *testing.T) {
	app := setupApp(t)
	token, _, _ := app.registerUser(t, "inactive@test.com", "password123")

	gym := app.createCategory(t, token, "Gym", "40")

	rec := app.request("POST", fmt.Sprintf("/api/v1/categories/%s/deactivate", gym), "", token)
	expectStatus(t, rec, http.StatusOK)
	if parseJSON(t, rec)["category"].(map[string]interface{})["is_active"] != false {
		t.Error("expected category to be inactive")
	}

	rec = app.request("POST", "/api/v1/transactions", fmt.Sprintf(`{"category_id":%q,"amount":"30"}`, gym), token)
	expectStatus(t, rec, http.StatusConflict)
	if code := errorCode(t, rec); code != "CATEGORY_INACTIVE" {
		t.Errorf("expected CATEGORY_INACTIVE, got %s", code)
	}

	rec = app.request("POST", fmt.Sprintf("/api/v1/categories/%s/reactivate", gym), "", token)
	expectStatus(t, rec, http.StatusOK)

	rec = app.request("POST", "/api/v1/transactions", fmt.Sprintf(`{"category_id":%q,"amount":"30"}`, gym), token)
	expectStatus(t, rec, http.StatusCreated)
}
