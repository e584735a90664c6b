package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/aerr"
)

func newTestManager() *Manager {
	state := &State{Keys: map[string]*KeyEntry{}, BootstrapKeyHash: hashToken("bootstrap-secret")}
	return New(state, Options{})
}

func TestGrantAndAdmitREST(t *testing.T) {
	m := newTestManager()
	res, err := m.Grant(GrantOptions{Scope: Scope{Mode: ScopeRW, Projects: []string{"demo"}}})
	require.NoError(t, err)
	require.Len(t, res.Token, 16)

	_, err = m.AdmitREST(res.Token)
	require.Error(t, err)
	require.Equal(t, aerr.KindAPIDisabled, aerr.KindOf(err))

	changed, err := m.SetApiEnabled(true, "tester", "enable for test")
	require.NoError(t, err)
	require.True(t, changed)

	binding, err := m.AdmitREST(res.Token)
	require.NoError(t, err)
	require.True(t, binding.Scope.CanWrite("demo"))
	require.False(t, binding.Scope.CanWrite("other"))
}

func TestAdmitRESTRejectsBootstrap(t *testing.T) {
	m := newTestManager()
	m.Grant(GrantOptions{Scope: Scope{Mode: ScopeALL}})
	m.SetApiEnabled(true, "", "")
	_, err := m.AdmitREST("bootstrap-secret")
	require.Error(t, err)
	require.Equal(t, aerr.KindBootstrapBlocked, aerr.KindOf(err))
}

func TestAdmitRESTMissingAndInvalidToken(t *testing.T) {
	m := newTestManager()
	m.Grant(GrantOptions{Scope: Scope{Mode: ScopeALL}})
	m.SetApiEnabled(true, "", "")

	_, err := m.AdmitREST("")
	require.Equal(t, aerr.KindMissingToken, aerr.KindOf(err))

	_, err = m.AdmitREST("not-a-real-token")
	require.Equal(t, aerr.KindInvalidToken, aerr.KindOf(err))
}

func TestRevokeLastKeyDisablesAPI(t *testing.T) {
	m := newTestManager()
	res, _ := m.Grant(GrantOptions{Scope: Scope{Mode: ScopeALL}})
	m.SetApiEnabled(true, "", "")

	ok, err := m.Revoke(res.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, m.IsApiEnabled())
	require.True(t, m.state.BootstrapActive)
}

func TestResetRevokesEverything(t *testing.T) {
	m := newTestManager()
	m.Grant(GrantOptions{Scope: Scope{Mode: ScopeALL}})
	m.Grant(GrantOptions{Scope: Scope{Mode: ScopeRO}})
	m.SetApiEnabled(true, "", "")

	count, err := m.Reset()
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.False(t, m.IsApiEnabled())
	require.Empty(t, m.List(false))
}

func TestScopeCanReadWrite(t *testing.T) {
	ro := Scope{Mode: ScopeRO, Projects: []string{"*"}}
	require.True(t, ro.CanRead("any"))
	require.False(t, ro.CanWrite("any"))

	rw := Scope{Mode: ScopeRW, Projects: []string{"demo"}}
	require.True(t, rw.CanWrite("demo"))
	require.False(t, rw.CanWrite("other"))
}
