// nexor/contact/validate.go
package contact

import (
	"sort"
	"strings"
	"unicode/utf8"

	"nexor/config"
	"nexor/models"
	"nexor/utils"
)

// FieldErrors maps a form field name to a user-facing message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe[f])
	}
	return "invalid contact form: " + strings.Join(parts, "; ")
}

// Validate trims the form in place and checks it the way the site form
// does. It returns nil when the form is acceptable.
func Validate(form *models.ContactForm) FieldErrors {
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.TrimSpace(form.Email)
	form.Subject = strings.TrimSpace(form.Subject)
	form.Message = strings.TrimSpace(form.Message)

	errs := FieldErrors{}
	required := []struct {
		field, value string
	}{
		{"name", form.Name},
		{"email", form.Email},
		{"subject", form.Subject},
		{"message", form.Message},
	}
	for _, r := range required {
		if r.value == "" {
			errs[r.field] = "Este campo é obrigatório."
			continue
		}
		if utf8.RuneCountInString(r.value) > config.MaxContactField {
			errs[r.field] = "Texto muito longo."
		}
	}

	if _, bad := errs["name"]; !bad && utf8.RuneCountInString(form.Name) < config.MinContactName {
		errs["name"] = "O nome deve ter pelo menos 2 caracteres."
	}
	if _, bad := errs["email"]; !bad && !utils.IsValidEmail(form.Email) {
		errs["email"] = "Por favor, insira um email válido."
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
