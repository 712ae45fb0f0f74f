package models

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	apperrors "github.com/getmentor/confluence-alert-action/pkg/errors"
)

// ActionConfig holds the alert action parameters delivered in the payload's
// "configuration" object
type ActionConfig struct {
	BaseURL   string `json:"BASE_URL" validate:"required,url"`
	PageID    string `json:"PAGE_ID" validate:"required"`
	SpaceKey  string `json:"SPACE_KEY" validate:"required"`
	PageTitle string `json:"PAGE_TITLE" validate:"required"`
	AuthUser  string `json:"AUTH_USER" validate:"required"`
	AuthToken string `json:"AUTH_TOKEN" validate:"required"`
}

// AlertPayload is the document a Splunk alert action receives on stdin
type AlertPayload struct {
	Configuration ActionConfig
	Rows          []Row

	// Search metadata, used for log context only
	SID         string
	SearchName  string
	App         string
	Owner       string
	ResultsLink string
	ServerURI   string
}

// Cell is one column/value pair of a result row
type Cell struct {
	Column string
	Value  string
}

// Row is a result row with its columns in document order
type Row []Cell

// Get returns the value of column
func (r Row) Get(column string) (string, bool) {
	for _, cell := range r {
		if cell.Column == column {
			return cell.Value, true
		}
	}
	return "", false
}

// Columns returns the column names in order
func (r Row) Columns() []string {
	columns := make([]string, len(r))
	for i, cell := range r {
		columns[i] = cell.Column
	}
	return columns
}

// Table is a rectangular view of the result rows
type Table struct {
	Headers []string
	Rows    [][]string
}

// IsEmpty reports whether the table has no data rows
func (t Table) IsEmpty() bool {
	return len(t.Rows) == 0
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate checks that every required parameter is present
func (c ActionConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return apperrors.InvalidInputError("configuration", err.Error())
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, validationMessage(fe))
	}
	return apperrors.InvalidInputError("configuration", strings.Join(messages, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "url":
		return fe.Field() + " must be a valid URL"
	default:
		return fe.Field() + " is invalid"
	}
}

// ParseAlertPayload decodes and validates an alert payload. Column order of
// each row is the key order of the JSON document.
func ParseAlertPayload(data []byte) (*AlertPayload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, apperrors.InvalidInputError("", "no payload received on stdin")
	}
	if !gjson.ValidBytes(data) {
		return nil, apperrors.InvalidInputError("payload", "malformed JSON")
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, apperrors.InvalidInputError("payload", "expected a JSON object")
	}

	conf := root.Get("configuration")
	if conf.Exists() && conf.Type != gjson.Null && !conf.IsObject() {
		return nil, apperrors.InvalidInputError("configuration", "expected a JSON object")
	}

	payload := &AlertPayload{
		Configuration: ActionConfig{
			BaseURL:   strings.TrimRight(strings.TrimSpace(conf.Get("BASE_URL").String()), "/"),
			PageID:    strings.TrimSpace(conf.Get("PAGE_ID").String()),
			SpaceKey:  conf.Get("SPACE_KEY").String(),
			PageTitle: conf.Get("PAGE_TITLE").String(),
			AuthUser:  conf.Get("AUTH_USER").String(),
			AuthToken: conf.Get("AUTH_TOKEN").String(),
		},
		SID:         root.Get("sid").String(),
		SearchName:  root.Get("search_name").String(),
		App:         root.Get("app").String(),
		Owner:       root.Get("owner").String(),
		ResultsLink: root.Get("results_link").String(),
		ServerURI:   root.Get("server_uri").String(),
	}

	rows, err := parseRows(root.Get("result"))
	if err != nil {
		return nil, err
	}
	payload.Rows = rows

	return payload, nil
}

// parseRows turns the "result" value into a list of rows. A single object is
// one row; a missing or null result is no rows.
func parseRows(result gjson.Result) ([]Row, error) {
	switch {
	case !result.Exists() || result.Type == gjson.Null:
		return nil, nil
	case result.IsObject():
		return []Row{parseRow(result)}, nil
	case result.IsArray():
		elements := result.Array()
		rows := make([]Row, 0, len(elements))
		for i, element := range elements {
			if !element.IsObject() {
				return nil, apperrors.InvalidInputError("result", fmt.Sprintf("element %d is not an object", i))
			}
			rows = append(rows, parseRow(element))
		}
		return rows, nil
	default:
		return nil, apperrors.InvalidInputError("result", "expected an object or an array of objects")
	}
}

// parseRow keeps one cell per key. A repeated key keeps its first position
// and takes the last value.
func parseRow(object gjson.Result) Row {
	var row Row
	seen := make(map[string]int)
	object.ForEach(func(key, value gjson.Result) bool {
		column := key.String()
		if i, ok := seen[column]; ok {
			row[i].Value = cellText(value)
			return true
		}
		seen[column] = len(row)
		row = append(row, Cell{Column: column, Value: cellText(value)})
		return true
	})
	return row
}

// cellText renders a JSON value as cell text: strings unquoted, null empty,
// everything else as its JSON literal.
func cellText(value gjson.Result) string {
	switch value.Type {
	case gjson.String:
		return value.Str
	case gjson.Null:
		return ""
	default:
		return value.Raw
	}
}
