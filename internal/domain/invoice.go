package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FieldKind is the declared type of an invoice field.
type FieldKind string

const (
	FieldAmount FieldKind = "amount" // fixed-point decimal, two fractional digits
	FieldText   FieldKind = "text"
	FieldDate   FieldKind = "date" // YYYY-MM-DD
)

// FieldAlias binds a stable internal field name to its human-facing
// (Chinese) label. All internal logic addresses fields by the internal
// name; JSON in and out uses the label.
type FieldAlias struct {
	Internal string
	Label    string
	Kind     FieldKind
}

// Fields is the single bidirectional alias table for the seven invoice
// fields. Both the model-output parser (label -> internal) and the
// serializer (internal -> label) consult this table; it is never
// duplicated elsewhere.
var Fields = []FieldAlias{
	{Internal: "total_amount", Label: "总金额", Kind: FieldAmount},
	{Internal: "payee", Label: "收款单位", Kind: FieldText},
	{Internal: "visit_date", Label: "就诊日期", Kind: FieldDate},
	{Internal: "insurance_payment", Label: "医保基金支付金额", Kind: FieldAmount},
	{Internal: "personal_payment", Label: "个人支付", Kind: FieldAmount},
	{Internal: "personal_account_payment", Label: "个人账户支付", Kind: FieldAmount},
	{Internal: "personal_cash_payment", Label: "个人现金支付", Kind: FieldAmount},
}

// LabelFor returns the human-facing label for an internal field name.
func LabelFor(internal string) (string, bool) {
	for _, f := range Fields {
		if f.Internal == internal {
			return f.Label, true
		}
	}
	return "", false
}

// InternalFor returns the internal field name for a human-facing label.
func InternalFor(label string) (string, bool) {
	for _, f := range Fields {
		if f.Label == label {
			return f.Internal, true
		}
	}
	return "", false
}

// FieldLabels returns the labels in table order.
func FieldLabels() []string {
	labels := make([]string, len(Fields))
	for i, f := range Fields {
		labels[i] = f.Label
	}
	return labels
}

// InvoiceRecord is the structured data extracted from one medical
// e-invoice. A nil field means the model could not find it in the text;
// it is never substituted with zero or an empty string.
type InvoiceRecord struct {
	TotalAmount            *decimal.Decimal // 总金额
	Payee                  *string          // 收款单位
	VisitDate              *string          // 就诊日期, YYYY-MM-DD
	InsurancePayment       *decimal.Decimal // 医保基金支付金额
	PersonalPayment        *decimal.Decimal // 个人支付
	PersonalAccountPayment *decimal.Decimal // 个人账户支付
	PersonalCashPayment    *decimal.Decimal // 个人现金支付
}

// FieldTypeError reports a present field whose value does not match the
// declared field type (e.g. non-numeric text where a decimal is expected).
type FieldTypeError struct {
	Label    string
	Internal string
	Want     FieldKind
	Err      error
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("field %s (%s): expected %s: %v", e.Label, e.Internal, e.Want, e.Err)
}

func (e *FieldTypeError) Unwrap() error {
	return e.Err
}

func (r *InvoiceRecord) amountSlot(internal string) **decimal.Decimal {
	switch internal {
	case "total_amount":
		return &r.TotalAmount
	case "insurance_payment":
		return &r.InsurancePayment
	case "personal_payment":
		return &r.PersonalPayment
	case "personal_account_payment":
		return &r.PersonalAccountPayment
	case "personal_cash_payment":
		return &r.PersonalCashPayment
	}
	return nil
}

func (r *InvoiceRecord) textSlot(internal string) **string {
	switch internal {
	case "payee":
		return &r.Payee
	case "visit_date":
		return &r.VisitDate
	}
	return nil
}

// MarshalJSON serializes the record keyed by the human-facing labels.
// All seven labels are always present; unset fields serialize as null.
func (r InvoiceRecord) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(Fields))
	for _, f := range Fields {
		switch f.Kind {
		case FieldAmount:
			if d := *r.amountSlot(f.Internal); d != nil {
				// emit as a JSON number with exactly two fractional digits
				m[f.Label] = json.RawMessage(d.StringFixed(2))
			} else {
				m[f.Label] = nil
			}
		default:
			if s := *r.textSlot(f.Internal); s != nil {
				m[f.Label] = *s
			} else {
				m[f.Label] = nil
			}
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON populates the record from a JSON object keyed by the
// human-facing labels. Absent or null fields stay unset. Unknown keys
// are ignored. A present field of the wrong type yields a *FieldTypeError.
func (r *InvoiceRecord) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for _, f := range Fields {
		raw, ok := m[f.Label]
		if !ok || string(raw) == "null" {
			continue
		}
		switch f.Kind {
		case FieldAmount:
			var d decimal.Decimal
			if err := json.Unmarshal(raw, &d); err != nil {
				return &FieldTypeError{Label: f.Label, Internal: f.Internal, Want: f.Kind, Err: err}
			}
			d = d.Round(2)
			*r.amountSlot(f.Internal) = &d
		case FieldDate:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return &FieldTypeError{Label: f.Label, Internal: f.Internal, Want: f.Kind, Err: err}
			}
			if _, err := time.Parse("2006-01-02", s); err != nil {
				return &FieldTypeError{Label: f.Label, Internal: f.Internal, Want: f.Kind, Err: err}
			}
			*r.textSlot(f.Internal) = &s
		case FieldText:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return &FieldTypeError{Label: f.Label, Internal: f.Internal, Want: f.Kind, Err: err}
			}
			*r.textSlot(f.Internal) = &s
		}
	}
	return nil
}
