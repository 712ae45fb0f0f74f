package models

import (
	"errors"
	"testing"

	apperrors "github.com/getmentor/confluence-alert-action/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfiguration = `"configuration":{"BASE_URL":"https://x/","PAGE_ID":"1","SPACE_KEY":"S","PAGE_TITLE":"T","AUTH_USER":"u","AUTH_TOKEN":"t"}`

func TestParseAlertPayload_ArrayResult(t *testing.T) {
	data := []byte(`{` + validConfiguration + `,"result":[{"host":"a","count":3},{"host":"b","count":5}]}`)

	payload, err := ParseAlertPayload(data)
	require.NoError(t, err)

	assert.Equal(t, ActionConfig{
		BaseURL:   "https://x",
		PageID:    "1",
		SpaceKey:  "S",
		PageTitle: "T",
		AuthUser:  "u",
		AuthToken: "t",
	}, payload.Configuration)
	require.Len(t, payload.Rows, 2)
	assert.Equal(t, Row{{Column: "host", Value: "a"}, {Column: "count", Value: "3"}}, payload.Rows[0])
	assert.Equal(t, Row{{Column: "host", Value: "b"}, {Column: "count", Value: "5"}}, payload.Rows[1])
	assert.NoError(t, payload.Configuration.Validate())
}

func TestParseAlertPayload_SingleObjectMatchesOneElementArray(t *testing.T) {
	single, err := ParseAlertPayload([]byte(`{` + validConfiguration + `,"result":{"host":"a","count":3}}`))
	require.NoError(t, err)

	list, err := ParseAlertPayload([]byte(`{` + validConfiguration + `,"result":[{"host":"a","count":3}]}`))
	require.NoError(t, err)

	assert.Equal(t, list.Rows, single.Rows)
}

func TestParseAlertPayload_PreservesKeyOrder(t *testing.T) {
	payload, err := ParseAlertPayload([]byte(`{"result":{"zeta":"1","alpha":"2","mid":"3"}}`))
	require.NoError(t, err)
	require.Len(t, payload.Rows, 1)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, payload.Rows[0].Columns())
}

func TestParseAlertPayload_RepeatedKeyKeepsLastValue(t *testing.T) {
	payload, err := ParseAlertPayload([]byte(`{"result":[{"a":1,"b":"x","a":2}]}`))
	require.NoError(t, err)
	require.Len(t, payload.Rows, 1)

	row := payload.Rows[0]
	assert.Equal(t, []string{"a", "b"}, row.Columns())
	value, ok := row.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", value)
}

func TestParseAlertPayload_CellText(t *testing.T) {
	payload, err := ParseAlertPayload([]byte(`{"result":{"s":"<b>x</b>","n":1.5,"t":true,"z":null,"o":{"k":1},"a":[1,2]}}`))
	require.NoError(t, err)

	row := payload.Rows[0]
	for column, expected := range map[string]string{
		"s": "<b>x</b>",
		"n": "1.5",
		"t": "true",
		"z": "",
		"o": `{"k":1}`,
		"a": "[1,2]",
	} {
		value, ok := row.Get(column)
		assert.True(t, ok, column)
		assert.Equal(t, expected, value, column)
	}

	_, ok := row.Get("missing")
	assert.False(t, ok)
}

func TestParseAlertPayload_MissingOrNullResult(t *testing.T) {
	for _, data := range []string{`{}`, `{"result":null}`, `{"result":[]}`} {
		payload, err := ParseAlertPayload([]byte(data))
		require.NoError(t, err, data)
		assert.Empty(t, payload.Rows, data)
	}
}

func TestParseAlertPayload_Metadata(t *testing.T) {
	payload, err := ParseAlertPayload([]byte(`{"sid":"scheduler__admin__search__RMD5","search_name":"Errors by host","app":"search","owner":"admin","results_link":"https://splunk/app/search?sid=1","server_uri":"https://127.0.0.1:8089"}`))
	require.NoError(t, err)

	assert.Equal(t, "scheduler__admin__search__RMD5", payload.SID)
	assert.Equal(t, "Errors by host", payload.SearchName)
	assert.Equal(t, "search", payload.App)
	assert.Equal(t, "admin", payload.Owner)
	assert.Equal(t, "https://splunk/app/search?sid=1", payload.ResultsLink)
	assert.Equal(t, "https://127.0.0.1:8089", payload.ServerURI)
}

func TestParseAlertPayload_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		errorMsg string
	}{
		{name: "empty", data: "", errorMsg: "no payload received on stdin"},
		{name: "whitespace", data: " \n\t", errorMsg: "no payload received on stdin"},
		{name: "malformed", data: `{"configuration":`, errorMsg: "malformed JSON"},
		{name: "not an object", data: `[1,2]`, errorMsg: "expected a JSON object"},
		{name: "configuration not an object", data: `{"configuration":"x"}`, errorMsg: "configuration: expected a JSON object"},
		{name: "scalar result", data: `{"result":42}`, errorMsg: "expected an object or an array of objects"},
		{name: "array of scalars", data: `{"result":[{"a":1},"b"]}`, errorMsg: "element 1 is not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAlertPayload([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
		})
	}
}

func TestActionConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		config   ActionConfig
		errorMsg string
	}{
		{
			name:     "missing page id",
			config:   ActionConfig{BaseURL: "https://x", SpaceKey: "S", PageTitle: "T", AuthUser: "u", AuthToken: "t"},
			errorMsg: "PAGE_ID is required",
		},
		{
			name:     "invalid base url",
			config:   ActionConfig{BaseURL: "not a url", PageID: "1", SpaceKey: "S", PageTitle: "T", AuthUser: "u", AuthToken: "t"},
			errorMsg: "BASE_URL must be a valid URL",
		},
		{
			name:     "everything missing",
			config:   ActionConfig{},
			errorMsg: "BASE_URL is required; PAGE_ID is required; SPACE_KEY is required; PAGE_TITLE is required; AUTH_USER is required; AUTH_TOKEN is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
		})
	}
}
