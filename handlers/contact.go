package handlers

import (
	"net/http"

	"nexor/contact"
	"nexor/models"
)

// HandleContactSubmit is the site's contact form. The visitor always gets a
// success answer once the form validates; delivery problems end up in the
// fallback store.
func HandleContactSubmit(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleContactSubmit")
	var form models.ContactForm
	if err := decodeJSON(r, &form); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}
	if errs := contact.Validate(&form); errs != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid form.", "fields": errs}, app)
		return
	}

	res, err := app.Contacts().Submit(r.Context(), form)
	if err != nil {
		logger.Error("Contact submission lost", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not send your message. Please try again later.", app)
		return
	}
	logger.Info("Contact submitted", "delivery", res.Delivery)
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "delivery": res.Delivery}, app)
}

// HandleContactIntake is the endpoint the submitter delivers to. It stores
// the record in the contacts table.
func HandleContactIntake(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleContactIntake")
	var form models.ContactForm
	if err := decodeJSON(r, &form); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}
	if errs := contact.Validate(&form); errs != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid form.", "fields": errs}, app)
		return
	}
	id, err := app.DB().InsertContact(form)
	if err != nil {
		logger.Error("Failed to store contact", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id}, app)
}
