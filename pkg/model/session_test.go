package model_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func TestSessionIdentityValidate(t *testing.T) {
	testCases := []struct {
		name    string
		session model.SessionIdentity
		valid   bool
	}{
		{"valid", model.SessionIdentity{UserID: "005", ThreadID: "terminal"}, true},
		{"email like user", model.SessionIdentity{UserID: "alice@example.com", ThreadID: "t-1.2_3"}, true},
		{"empty user", model.SessionIdentity{ThreadID: "terminal"}, false},
		{"empty thread", model.SessionIdentity{UserID: "005"}, false},
		{"colon in thread", model.SessionIdentity{UserID: "005", ThreadID: "notes:x"}, false},
		{"space in user", model.SessionIdentity{UserID: "a b", ThreadID: "x"}, false},
		{"too long", model.SessionIdentity{UserID: model.UserID(strings.Repeat("a", 129)), ThreadID: "x"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.session.Validate()
			if tc.valid {
				gt.NoError(t, err)
				return
			}
			gt.Error(t, err)
			gt.True(t, goerr.HasTag(err, model.ErrTagInvalidSessionIdentity))
			gt.Equal(t, model.KindOf(err), "invalid_session_identity")
		})
	}
}

func TestThreadKeys(t *testing.T) {
	s := model.SessionIdentity{UserID: "005", ThreadID: "terminal"}

	sup := model.SupervisorThread(s)
	gt.Equal(t, sup, model.ThreadKey{Namespace: "005", ThreadID: "terminal"})

	notes := model.NotesThread(s)
	gt.Equal(t, notes, model.ThreadKey{Namespace: "005", ThreadID: "notes:terminal"})
	gt.NotEqual(t, sup, notes)

	other := model.NotesThread(model.SessionIdentity{UserID: "006", ThreadID: "terminal"})
	gt.NotEqual(t, notes, other)
}
