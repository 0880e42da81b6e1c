package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/types"
)

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.CreateSession([]string{"sprint-12"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.True(t, sess.Active)

	// Appending consultations with the session id links them in order.
	var ids []string
	for i := 0; i < 3; i++ {
		r := sampleResult(fmt.Sprintf("question %d", i))
		r.SessionID = sess.ID
		id, err := store.Append(r)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	got, err := store.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, ids, got.ConsultationIDs)
	assert.Equal(t, []string{"sprint-12"}, got.Tags)

	require.NoError(t, store.EndSession(sess.ID))
	got, err = store.GetSession(sess.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestGetSessionUnknown(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetSession("missing")
	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "session", nf.Kind)
}

func TestEndSessionUnknown(t *testing.T) {
	store := newTestStore(t)
	err := store.EndSession("missing")
	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestListSessionsActiveOnly(t *testing.T) {
	store := newTestStore(t)

	a, err := store.CreateSession(nil)
	require.NoError(t, err)
	b, err := store.CreateSession(nil)
	require.NoError(t, err)
	require.NoError(t, store.EndSession(a.ID))

	all, err := store.ListSessions(false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := store.ListSessions(true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
}

func TestSessionCreatedImplicitlyOnAppend(t *testing.T) {
	store := newTestStore(t)

	// A consultation naming an unseen session id creates the session.
	r := sampleResult("implicit session")
	r.SessionID = "adhoc-session"
	_, err := store.Append(r)
	require.NoError(t, err)

	sess, err := store.GetSession("adhoc-session")
	require.NoError(t, err)
	assert.True(t, sess.Active)
	assert.Equal(t, []string{r.ID}, sess.ConsultationIDs)
}

func TestSessionTranscript(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.CreateSession(nil)
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 5; i++ {
		r := sampleResult(fmt.Sprintf("question %d", i))
		r.SessionID = sess.ID
		id, err := store.Append(r)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// Last three, oldest first.
	transcript, err := store.SessionTranscript(sess.ID, 3)
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	assert.Equal(t, ids[2], transcript[0].ID)
	assert.Equal(t, ids[4], transcript[2].ID)

	full, err := store.SessionTranscript(sess.ID, 0)
	require.NoError(t, err)
	assert.Len(t, full, 5)
}
