package session

import (
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/looplab/fsm"
)

// Lifecycle events. PENDING → PROCESSING → {COMPLETED, FAILED}; submit is a
// self-loop on PROCESSING (results may arrive repeatedly before complete).
const (
	eventClaim    = "claim"
	eventSubmit   = "submit"
	eventComplete = "complete"
	eventFail     = "fail"
)

func newLifecycle(status string) *fsm.FSM {
	return fsm.NewFSM(
		status,
		fsm.Events{
			{Name: eventClaim, Src: []string{models.StatusPending}, Dst: models.StatusProcessing},
			{Name: eventSubmit, Src: []string{models.StatusProcessing}, Dst: models.StatusProcessing},
			{Name: eventComplete, Src: []string{models.StatusProcessing}, Dst: models.StatusCompleted},
			{Name: eventFail, Src: []string{models.StatusPending, models.StatusProcessing}, Dst: models.StatusFailed},
		},
		fsm.Callbacks{},
	)
}

// canFire reports whether the event is legal from the given status. The FSM is
// the single source of truth for transition legality; the actual write is
// still a conditional UPDATE so concurrent actors cannot double-apply.
func canFire(status, event string) bool {
	return newLifecycle(status).Can(event)
}
