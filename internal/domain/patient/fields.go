package patient

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// FieldKind selects the input widget for a new-patient field.
type FieldKind string

const (
	FieldText  FieldKind = "text"
	FieldInt   FieldKind = "int"
	FieldFloat FieldKind = "float"
)

// FormField describes one input on the add-patient form. Numeric fields carry
// the widget range; values outside it are clamped rather than rejected.
type FormField struct {
	Name  string
	Label string
	Kind  FieldKind
	Min   float64
	Max   float64
}

// Step is the HTML step attribute for the field.
func (f FormField) Step() string {
	if f.Kind == FieldFloat {
		return "0.1"
	}
	return "1"
}

// Numeric reports whether the field uses a number widget.
func (f FormField) Numeric() bool { return f.Kind != FieldText }

// NewPatientFields is the add-patient form, in display order.
var NewPatientFields = []FormField{
	{Name: "Name", Label: "Name", Kind: FieldText},
	{Name: "Age", Label: "Age", Kind: FieldInt, Min: 0, Max: 120},
	{Name: "Height", Label: "Height (cm)", Kind: FieldInt, Min: 50, Max: 250},
	{Name: "Medical_Contents", Label: "Medical Contents", Kind: FieldText},
	{Name: "Blood_Pressure", Label: "Blood Pressure", Kind: FieldText},
	{Name: "Heart_Rate", Label: "Heart Rate", Kind: FieldInt, Min: 0, Max: 200},
	{Name: "Blood_Sugar", Label: "Blood Sugar", Kind: FieldInt, Min: 0, Max: 500},
	{Name: "Cholesterol", Label: "Cholesterol", Kind: FieldInt, Min: 0, Max: 500},
	{Name: "BMI", Label: "BMI", Kind: FieldInt, Min: 0, Max: 50},
	{Name: "Allergies", Label: "Allergies", Kind: FieldText},
	{Name: "Medications", Label: "Medications", Kind: FieldText},
	{Name: "Smoking_Status", Label: "Smoking Status", Kind: FieldText},
	{Name: "Alcohol_Consumption", Label: "Alcohol Consumption", Kind: FieldText},
	{Name: "Physical_Activity", Label: "Physical Activity", Kind: FieldText},
	{Name: "Family_History", Label: "Family History", Kind: FieldText},
	{Name: "Mental_Health", Label: "Mental Health", Kind: FieldText},
	{Name: "Sleep_Patterns", Label: "Sleep Patterns", Kind: FieldText},
	{Name: "Vision", Label: "Vision", Kind: FieldText},
	{Name: "Hearing", Label: "Hearing", Kind: FieldText},
	{Name: "Respiratory_Rate", Label: "Respiratory Rate", Kind: FieldInt, Min: 0, Max: 50},
	{Name: "Temperature", Label: "Temperature", Kind: FieldFloat, Min: 90.0, Max: 110.0},
	{Name: "Pain_Level", Label: "Pain Level", Kind: FieldInt, Min: 0, Max: 10},
}

// FieldsFromForm builds a new-patient record from submitted form values.
// Every form field is present in the result: text fields default to "",
// numeric fields to their minimum, mirroring what the widgets submit when
// left untouched.
func FieldsFromForm(form url.Values) Record {
	rec := make(Record, len(NewPatientFields))
	for _, f := range NewPatientFields {
		raw := form.Get(f.Name)
		switch f.Kind {
		case FieldInt:
			n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil || math.IsNaN(n) {
				n = f.Min
			}
			rec[f.Name] = int64(math.Round(clamp(n, f.Min, f.Max)))
		case FieldFloat:
			n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil || math.IsNaN(n) {
				n = f.Min
			}
			rec[f.Name] = clamp(n, f.Min, f.Max)
		default:
			rec[f.Name] = raw
		}
	}
	return rec
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
