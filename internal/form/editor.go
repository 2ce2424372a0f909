package form

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"sort"
	"strings"

	appLog "schedweb/internal/log"
)

// Mode is add or edit.
type Mode int

const (
	ModeAdd Mode = iota
	ModeEdit
)

// Actions submits payloads to the backend. *backend.Client satisfies it.
type Actions interface {
	Create(ctx context.Context, resource string, payload any) error
	Update(ctx context.Context, resource string, payload any) error
	Delete(ctx context.Context, resource string, payload any) error
}

// Outcome is what the caller shows after a submit. Close means the editor
// should be closed and the record store refreshed.
type Outcome struct {
	Message string
	IsError bool
	Close   bool
	Err     error
}

// Option is one select choice.
type Option struct {
	Value string
	Name  string
}

// Collections maps select source keys to their choices.
type Collections map[string][]Option

// RenderedOption is an option ready for a template.
type RenderedOption struct {
	Value    string
	Label    string
	Selected bool
}

// RenderedField is a field with its current value(s) and options resolved.
type RenderedField struct {
	Kind     FieldKind
	Label    string
	Name     string
	Required bool
	Attrs    map[string]string

	Value    string
	Values   []string
	Multiple bool
	Options  []RenderedOption
	DataList string
	MaxLen   int

	Error string
}

// Editor is one open form: the entity kind, its template, the record being
// edited (nil in add mode) and the current values.
type Editor struct {
	kind   Kind
	tmpl   Template
	record Record
	mode   Mode
	title  string
	values Values
	errs   map[string]string
}

// New opens an editor. A nil record selects add mode.
func New(kind Kind, record Record) *Editor {
	e := &Editor{
		kind:   kind,
		tmpl:   kind.Template(),
		record: record,
		errs:   map[string]string{},
	}
	if record == nil {
		e.mode = ModeAdd
		e.title = "Add " + kind.ItemName()
		e.values = blank(e.tmpl)
	} else {
		e.mode = ModeEdit
		e.title = "Edit " + kind.ItemName()
		e.values = record.Seed(e.tmpl)
	}
	return e
}

func (e *Editor) Kind() Kind         { return e.kind }
func (e *Editor) Mode() Mode         { return e.mode }
func (e *Editor) Title() string      { return e.title }
func (e *Editor) Template() Template { return e.tmpl }

// Values returns a copy of the current values.
func (e *Editor) Values() Values { return e.values.Clone() }

// FieldErrors returns the messages from the last failed validation.
func (e *Editor) FieldErrors() map[string]string { return maps.Clone(e.errs) }

// RecordID returns the edited record's id, or 0 in add mode.
func (e *Editor) RecordID() int64 {
	if e.record == nil {
		return 0
	}
	return e.record.RecordID()
}

// Ready reports whether initial values exist. Fields are not rendered
// before that.
func (e *Editor) Ready() bool { return len(e.values) > 0 }

// Render resolves every field against the current values. Select options
// are sorted by name; equal names keep their collection order.
func (e *Editor) Render(c Collections) []RenderedField {
	if !e.Ready() {
		return nil
	}
	out := make([]RenderedField, 0, len(e.tmpl))
	for _, f := range e.tmpl {
		out = append(out, e.renderField(f, c))
	}
	return out
}

func (e *Editor) renderField(f Field, c Collections) RenderedField {
	cm := f.common()
	val := e.values[cm.Name]
	rf := RenderedField{
		Kind:     f.Kind(),
		Label:    cm.Label,
		Name:     cm.Name,
		Required: cm.Required,
		Attrs:    cm.Attrs,
		Value:    val.String(),
		Error:    e.errs[cm.Name],
	}

	switch ft := f.(type) {
	case TextField:
		rf.DataList = ft.DataList
	case TextAreaField:
		rf.MaxLen = ft.MaxLength
	case SelectField:
		rf.Multiple = ft.Multiple
		rf.Values = val.Strings()
		rf.Options = selectOptions(ft, c[ft.Source], rf.Values)
	}
	return rf
}

func selectOptions(f SelectField, choices []Option, selected []string) []RenderedOption {
	sorted := make([]Option, len(choices))
	copy(sorted, choices)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	isSelected := make(map[string]bool, len(selected))
	for _, s := range selected {
		isSelected[s] = true
	}

	out := make([]RenderedOption, 0, len(sorted)+1)
	if !f.SkipEmpty {
		out = append(out, RenderedOption{})
	}
	for _, o := range sorted {
		out = append(out, RenderedOption{Value: o.Value, Label: o.Name, Selected: isSelected[o.Value]})
	}
	return out
}

// Collect replaces the current values with those posted in form. Fields
// absent from the form become empty.
func (e *Editor) Collect(form url.Values) {
	next := make(Values, len(e.tmpl))
	for _, f := range e.tmpl {
		name := f.common().Name
		if isMulti(f) {
			items := make([]string, 0, len(form[name]))
			for _, s := range form[name] {
				if s != "" {
					items = append(items, s)
				}
			}
			next[name] = List(items...)
			continue
		}
		next[name] = Str(form.Get(name))
	}
	e.values = next
	e.errs = map[string]string{}
}

// Validate checks the current values and records per-field messages.
func (e *Editor) Validate() error {
	err := Validate(e.tmpl, e.kind.Rules(), e.values)
	var verr *ValidationError
	if errors.As(err, &verr) {
		e.errs = maps.Clone(verr.Fields)
	} else {
		e.errs = map[string]string{}
	}
	return err
}

// Save validates and then creates (add mode) or updates (edit mode) the
// record. Nothing is sent when validation fails.
func (e *Editor) Save(ctx context.Context, a Actions) Outcome {
	verb := "add"
	if e.mode == ModeEdit {
		verb = "update"
	}

	if err := e.Validate(); err != nil {
		return Outcome{Message: "Please correct the highlighted fields.", IsError: true, Err: err}
	}

	payload, err := e.kind.Payload(e.values)
	if err != nil {
		return e.failure(verb, err)
	}

	if e.mode == ModeEdit {
		payload[e.kind.IDKey()] = e.record.RecordID()
		err = a.Update(ctx, e.kind.Resource(), payload)
	} else {
		err = a.Create(ctx, e.kind.Resource(), payload)
	}
	if err != nil {
		return e.failure(verb, err)
	}
	return e.success(verb)
}

// Delete removes the edited record. It is an error in add mode.
func (e *Editor) Delete(ctx context.Context, a Actions) Outcome {
	if e.mode != ModeEdit {
		return e.failure("delete", errors.New("no record to delete"))
	}
	payload := map[string]any{e.kind.IDKey(): e.record.RecordID()}
	if err := a.Delete(ctx, e.kind.Resource(), payload); err != nil {
		return e.failure("delete", err)
	}
	return e.success("delete")
}

func (e *Editor) failure(verb string, err error) Outcome {
	appLog.Error("editor submit failed", err, "verb", verb, "item", e.kind.Noun(), "id", e.RecordID())
	return Outcome{
		Message: fmt.Sprintf("Error: Could not %s %s.", verb, e.kind.Noun()),
		IsError: true,
		Err:     err,
	}
}

func (e *Editor) success(verb string) Outcome {
	return Outcome{
		Message: pastTense(verb) + " " + e.kind.Noun(),
		Close:   true,
	}
}

// pastTense turns "add" into "Added", "update" into "Updated".
func pastTense(verb string) string {
	p := verb + "ed"
	if strings.HasSuffix(verb, "e") {
		p = verb + "d"
	}
	return strings.ToUpper(p[:1]) + p[1:]
}
