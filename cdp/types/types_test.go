package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRootFieldsOmitted(t *testing.T) {
	// a root-session command must not carry id-zero or an empty sessionId on
	// the wire
	buf, err := json.Marshal(&Message{Method: "Browser.getVersion"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"Browser.getVersion"}`, string(buf))

	buf, err = json.Marshal(&Message{ID: 7, SessionID: "abc", Method: "Page.navigate", Params: json.RawMessage(`{"url":"about:blank"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"sessionId":"abc","method":"Page.navigate","params":{"url":"about:blank"}}`, string(buf))
}

func TestMessageErrorDecoding(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"error":{"code":-32000,"message":"boom","data":"detail"}}`), &msg))
	require.NotNil(t, msg.Error)
	assert.Equal(t, -32000, msg.Error.Code)
	assert.Equal(t, "boom", msg.Error.Message)
	assert.Equal(t, `"detail"`, string(msg.Error.Data))
}
