package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"strings"

	"botnet-detector/internal/model"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.New("index.html").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(templateFS, "templates/index.html"))

type formField struct {
	Name  string
	Value string
}

type pageData struct {
	Fields  []formField
	Verdict *model.Verdict
}

// Home renders the empty prediction form.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, pageData{Fields: formFields(nil)})
}

// Predict classifies the submitted form. It always answers 200; warnings
// and errors are rendered on the page.
func (h *Handlers) Predict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		v := model.Verdict{Status: model.StatusError, Message: "could not read form: " + err.Error()}
		h.renderPage(w, pageData{Fields: formFields(nil), Verdict: &v})
		return
	}

	raw := make(map[string]string, len(r.PostForm))
	for name := range r.PostForm {
		raw[name] = r.PostForm.Get(name)
	}

	v := h.classify(r, raw)
	h.renderPage(w, pageData{Fields: formFields(raw), Verdict: &v})
}

func (h *Handlers) renderPage(w http.ResponseWriter, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.Errorf("Failed to render page: %v", err)
	}
}

func formFields(values map[string]string) []formField {
	fields := make([]formField, len(model.FormFields))
	for i, name := range model.FormFields {
		fields[i] = formField{Name: name, Value: values[name]}
	}
	return fields
}
