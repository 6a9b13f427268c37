package models

import (
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&User{}, &TrustedContact{},
		&EmergencySession{}, &EmergencyAction{}, &EmergencyContact{},
		&ActionLog{}, &AuditEvent{}, &LocationPing{},
	))
	return db
}

func seedOwner(t *testing.T, db *gorm.DB, contacts ...TrustedContact) *User {
	t.Helper()
	owner := &User{Phone: "0712000000", DisplayName: "Amina"}
	require.NoError(t, db.Create(owner).Error)
	for i := range contacts {
		contacts[i].UserID = owner.ID
		require.NoError(t, db.Create(&contacts[i]).Error)
	}
	return owner
}

func TestCreateEmergencySession(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db,
		TrustedContact{Name: "Wanjiru", Phone: "0712345678", Relationship: "sister", Priority: 1, NotifyVia: "SMS", Safe: true},
		TrustedContact{Name: "Otieno", Phone: "0723456789", Relationship: "friend", Priority: 2, NotifyVia: "SMS", Safe: true},
	)
	trusted, err := GetSafeTrustedContacts(db, owner.ID)
	require.NoError(t, err)

	session, err := CreateEmergencySession(db, owner, "high", trusted)
	require.NoError(t, err)
	assert.Equal(t, SessionActive, session.Status)
	assert.Equal(t, "high", session.RiskLevel)

	loaded, err := GetEmergencySession(db, session.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Actions, len(ActionKinds))

	states := map[string]string{}
	for _, a := range loaded.Actions {
		states[a.Type] = a.State
	}
	assert.Equal(t, ActionRunning, states[ActionLocation])
	assert.Equal(t, ActionQueued, states[ActionSMS])
	assert.Equal(t, ActionQueued, states[ActionEvidence])
	assert.Equal(t, ActionQueued, states[ActionResponder])

	require.Len(t, loaded.Contacts, 2)
	seen := map[string]bool{}
	for _, c := range loaded.Contacts {
		assert.NotEmpty(t, c.AckToken)
		assert.False(t, seen[c.AckToken], "ack tokens must be unique")
		seen[c.AckToken] = true
		assert.Equal(t, SMSPending, c.SMSStatus)
		assert.Nil(t, c.AckAt)
	}

	events, err := ListAuditEvents(db, session.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, AuditSessionStarted, events[0].Event)
}

func TestUnsafeContactsExcluded(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db,
		TrustedContact{Name: "Wanjiru", Phone: "0712345678", Priority: 1, Safe: true},
		TrustedContact{Name: "Abuser", Phone: "0798765432", Priority: 2, Safe: false},
	)

	trusted, err := GetSafeTrustedContacts(db, owner.ID)
	require.NoError(t, err)
	require.Len(t, trusted, 1)
	assert.Equal(t, "Wanjiru", trusted[0].Name)
}

func TestSetActionState(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db)
	session, err := CreateEmergencySession(db, owner, "medium", nil)
	require.NoError(t, err)

	err = SetActionState(db, session.ID, ActionSMS, ActionRunning, nil)
	require.NoError(t, err)

	err = SetActionState(db, session.ID, ActionSMS, ActionSuccess,
		map[string]interface{}{"delivered": 2, "failed": 0})
	require.NoError(t, err)

	loaded, err := GetEmergencySession(db, session.ID)
	require.NoError(t, err)
	for _, a := range loaded.Actions {
		if a.Type == ActionSMS {
			assert.Equal(t, ActionSuccess, a.State)
			assert.Contains(t, a.Meta, `"delivered":2`)
		}
	}

	err = SetActionState(db, session.ID, "UNKNOWN", ActionRunning, nil)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	err = SetActionState(db, "no-such-session", ActionSMS, ActionRunning, nil)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestResolveSessionOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db)
	session, err := CreateEmergencySession(db, owner, "high", nil)
	require.NoError(t, err)

	ok, err := ResolveSession(db, session.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ResolveSession(db, session.ID)
	require.NoError(t, err)
	assert.False(t, ok, "terminal session must not transition again")

	loaded, err := GetEmergencySession(db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionResolved, loaded.Status)
	assert.NotNil(t, loaded.EndedAt)
}

func TestUpdateLastLocationGatedOnActive(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db)
	session, err := CreateEmergencySession(db, owner, "high", nil)
	require.NoError(t, err)

	ok, err := UpdateLastLocation(db, session.ID, -1.2921, 36.8219, 12, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = ResolveSession(db, session.ID)
	require.NoError(t, err)

	ok, err = UpdateLastLocation(db, session.ID, -1.30, 36.83, 9, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "resolved session must reject location updates")
}

func TestAcknowledgeContactIdempotent(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db,
		TrustedContact{Name: "Wanjiru", Phone: "0712345678", Priority: 1, Safe: true})
	trusted, err := GetSafeTrustedContacts(db, owner.ID)
	require.NoError(t, err)
	session, err := CreateEmergencySession(db, owner, "high", trusted)
	require.NoError(t, err)
	token := session.Contacts[0].AckToken

	contact, already, err := AcknowledgeContact(db, token)
	require.NoError(t, err)
	assert.False(t, already)
	require.NotNil(t, contact.AckAt)
	first := *contact.AckAt

	contact, already, err = AcknowledgeContact(db, token)
	require.NoError(t, err)
	assert.True(t, already)
	require.NotNil(t, contact.AckAt)
	assert.WithinDuration(t, first, *contact.AckAt, time.Second)
	assert.Equal(t, SMSAcknowledged, contact.SMSStatus)

	_, _, err = AcknowledgeContact(db, "no-such-token")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSetContactOutcome(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db,
		TrustedContact{Name: "Wanjiru", Phone: "0712345678", Priority: 1, Safe: true})
	trusted, err := GetSafeTrustedContacts(db, owner.ID)
	require.NoError(t, err)
	session, err := CreateEmergencySession(db, owner, "high", trusted)
	require.NoError(t, err)
	token := session.Contacts[0].AckToken

	require.NoError(t, SetContactOutcome(db, session.ID, token, true, SMSSent))

	loaded, err := GetEmergencySession(db, session.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Contacts[0].SMSSent)
	assert.Equal(t, SMSSent, loaded.Contacts[0].SMSStatus)

	err = SetContactOutcome(db, session.ID, "bogus", true, SMSSent)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSessionStatus(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db)
	session, err := CreateEmergencySession(db, owner, "low", nil)
	require.NoError(t, err)

	status, err := SessionStatus(db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionActive, status)

	_, err = SessionStatus(db, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestActionLogOrdering(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db)
	session, err := CreateEmergencySession(db, owner, "high", nil)
	require.NoError(t, err)

	require.NoError(t, AppendActionLog(db, session.ID, ActionSMS, "first"))
	require.NoError(t, AppendActionLog(db, session.ID, ActionSMS, "second"))
	require.NoError(t, AppendActionLog(db, session.ID, ActionLocation, "third"))

	logs, err := ListActionLogs(db, session.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "first", logs[0].Message)
	assert.Equal(t, "second", logs[1].Message)
	assert.Equal(t, "third", logs[2].Message)
}

func TestRecentPingsAndPurge(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db)
	session, err := CreateEmergencySession(db, owner, "high", nil)
	require.NoError(t, err)

	old := &LocationPing{SessionID: session.ID, Lat: -1.28, Lng: 36.81, CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, db.Create(old).Error)
	_, err = CreateLocationPing(db, session.ID, -1.29, 36.82, 10)
	require.NoError(t, err)

	pings, err := RecentPings(db, session.ID, 10)
	require.NoError(t, err)
	require.Len(t, pings, 2)
	assert.Equal(t, -1.29, pings[0].Lat, "most recent first")

	deleted, err := PurgeExpiredPings(db, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	pings, err = RecentPings(db, session.ID, 10)
	require.NoError(t, err)
	require.Len(t, pings, 1)
	assert.Equal(t, -1.29, pings[0].Lat)
}

func TestSafetyPIN(t *testing.T) {
	db := newTestDB(t)
	owner := seedOwner(t, db)

	require.NoError(t, SetSafetyPIN(db, owner.ID, "4711"))
	reloaded, err := GetUser(db, owner.ID)
	require.NoError(t, err)
	require.NotEmpty(t, reloaded.SafetyPINHash)

	assert.True(t, VerifySafetyPIN(reloaded.SafetyPINHash, "4711"))
	assert.False(t, VerifySafetyPIN(reloaded.SafetyPINHash, "0000"))
}
