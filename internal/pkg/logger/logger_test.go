package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_RedactsEmails(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Info("subscribed", "email", "john.doe@example.com", "note", "cc ab@example.com", "count", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "subscribed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "jo***@example.com", entry["email"])
	assert.Equal(t, "cc ***@example.com", entry["note"])
	assert.Equal(t, "3", entry["count"])
}

func TestLogger_RedactsPhonesAndRecipientLists(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Info("contact received", "phone", "(757) 555-0100", "recipients", "katherine@nasa.gov, dorothy@nasa.gov")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "(***) ***-**00", entry["phone"])
	assert.Equal(t, "ka***@nasa.gov, do***@nasa.gov", entry["recipients"])
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "+*-***-***-**00", RedactPhone("+1-757-555-0100"))
	assert.Equal(t, "42", RedactPhone("42"))
	assert.Equal(t, "", RedactPhone(""))
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.level = WARN

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Error("kept", "error", errors.New("boom"))
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("DEBUG"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
	assert.Equal(t, "***@***", RedactEmail("a@b@c"))
}
