package session

import (
	"testing"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"
)

func TestCanFire(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status string
		event  string
		want   bool
	}{
		{models.StatusPending, eventClaim, true},
		{models.StatusPending, eventSubmit, false},
		{models.StatusPending, eventComplete, false},
		{models.StatusPending, eventFail, true},

		{models.StatusProcessing, eventClaim, false},
		{models.StatusProcessing, eventSubmit, true},
		{models.StatusProcessing, eventComplete, true},
		{models.StatusProcessing, eventFail, true},

		// терминальные статусы не принимают ничего
		{models.StatusCompleted, eventClaim, false},
		{models.StatusCompleted, eventSubmit, false},
		{models.StatusCompleted, eventComplete, false},
		{models.StatusCompleted, eventFail, false},
		{models.StatusFailed, eventSubmit, false},
		{models.StatusFailed, eventComplete, false},
	}
	for _, c := range cases {
		if got := canFire(c.status, c.event); got != c.want {
			t.Errorf("canFire(%s, %s) = %v, want %v", c.status, c.event, got, c.want)
		}
	}
}
