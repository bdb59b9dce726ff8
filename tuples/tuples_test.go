package tuples_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/stretchr/testify/require"
)

func TestDecodeKnownType(t *testing.T) {
	data := []byte(`{"_tupleType":"peek_plugin_user.UserLoginResponseTuple","payload":{"userName":"jdoe","userToken":"tok","succeeded":false,"errors":["bad password"],"warnings":{"k1":"a"}}}`)

	decoded, err := tuples.Decode(data)
	require.NoError(t, err)

	resp, ok := decoded.(*tuples.UserLoginResponse)
	require.True(t, ok)
	require.Equal(t, "jdoe", resp.UserName)
	require.Equal(t, "tok", resp.UserToken)
	require.False(t, resp.Succeeded)
	require.Equal(t, []string{"bad password"}, resp.Errors)
	require.Equal(t, map[string]string{"k1": "a"}, resp.Warnings)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := tuples.Decode([]byte(`{"_tupleType":"other.Thing","payload":{}}`))
	require.ErrorIs(t, err, errors.ErrUnknownTupleType)

	_, err = tuples.Decode([]byte(`{"payload":{}}`))
	require.ErrorIs(t, err, errors.ErrUnknownTupleType)

	_, err = tuples.Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestEncodeEnvelope(t *testing.T) {
	data, err := tuples.Encode(&tuples.UserLogoutAction{UserName: "jdoe", DeviceToken: "dev-1"})
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.JSONEq(t, `"peek_plugin_user.UserLogoutAction"`, string(raw["_tupleType"]))
	require.JSONEq(t, `{"userName":"jdoe","deviceToken":"dev-1"}`, string(raw["payload"]))

	_, err = tuples.Encode(nil)
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestListJSON(t *testing.T) {
	in := tuples.List{
		&tuples.UserListItem{UserID: "u1", DisplayName: "User One"},
		&tuples.UserLoggedIn{UserName: "u1", DeviceToken: "dev-1"},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out tuples.List
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 2)
	require.Equal(t, tuples.TypeUserListItem, out[0].TupleType())
	require.Equal(t, "dev-1", out[1].(*tuples.UserLoggedIn).DeviceToken)

	require.Error(t, json.Unmarshal([]byte(`[{"_tupleType":"nope"}]`), &out))
}

func TestAddWarningAppendsOnNewLine(t *testing.T) {
	var r tuples.Result
	r.AddWarning("k1", "a")
	r.AddWarning("k1", "b")
	r.AddWarning("k2", "c")
	require.Equal(t, map[string]string{"k1": "a\nb", "k2": "c"}, r.Warnings)

	r.Succeeded = true
	r.SetFailed()
	require.False(t, r.Succeeded)

	r.AcceptedWarningKeys = []string{tuples.UserAlreadyLoggedOnKey}
	require.True(t, r.Accepted(tuples.UserAlreadyLoggedOnKey))
	require.False(t, r.Accepted(tuples.DeviceAlreadyLoggedOnKey))
}

func TestSelectorKey(t *testing.T) {
	a := tuples.Selector{Name: tuples.TypeUserLoggedIn, Params: map[string]string{"userName": "u1", "b": "2"}}
	b := tuples.NewSelector(tuples.TypeUserLoggedIn, "b", "2", "userName", "u1")
	require.Equal(t, a.Key(), b.Key())
	require.Equal(t, "peek_plugin_user.UserLoggedInTuple{b=2,userName=u1}", a.Key())

	require.Equal(t, "peek_plugin_user.UserListItemTuple{}", tuples.UserListSelector().Key())
	require.Equal(t, "u1", tuples.UserLoggedInSelector("u1").Param("userName"))
	require.NotEqual(t, tuples.UserLoggedInSelector("u1").Key(), tuples.UserLoggedInSelector("u2").Key())
}

func TestDisplayText(t *testing.T) {
	require.Equal(t, "User One (u1)", tuples.UserListItem{UserID: "u1", DisplayName: "User One"}.DisplayText())
	require.Equal(t, "--- select ---", tuples.UserListItem{DisplayName: "--- select ---"}.DisplayText())
}
