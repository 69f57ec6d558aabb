package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tfgate/tfgate/internal/toolerr"
)

// planRecord ties a saved plan file to the user and workspace that
// produced it.
type planRecord struct {
	UserID      string
	Environment string
	Workspace   string
	File        string
	Created     time.Time
}

// planTable tracks saved plans between plan_infrastructure and
// apply_infrastructure. Records live in memory only; a plan does not
// survive a server restart and the stale plan file is simply replaced
// by the next plan run.
type planTable struct {
	mu    sync.Mutex
	plans map[string]planRecord
}

func newPlanTable() *planTable {
	return &planTable{plans: make(map[string]planRecord)}
}

// put stores a record and returns its generated id.
func (t *planTable) put(rec planRecord) string {
	id := uuid.NewString()
	t.mu.Lock()
	t.plans[id] = rec
	t.mu.Unlock()
	return id
}

// get returns the record for id if it belongs to userID. A missing id
// and a foreign id answer identically, so callers cannot enumerate
// other users' plans.
func (t *planTable) get(id, userID string) (planRecord, error) {
	t.mu.Lock()
	rec, ok := t.plans[id]
	t.mu.Unlock()
	if !ok || rec.UserID != userID {
		return planRecord{}, toolerr.New(toolerr.KindInvalidParameters, "plan %q not found", id)
	}
	return rec, nil
}

// remove forgets a consumed plan.
func (t *planTable) remove(id string) {
	t.mu.Lock()
	delete(t.plans, id)
	t.mu.Unlock()
}

// newPlanFile names the on-disk plan artifact inside the workspace.
func newPlanFile() string {
	return fmt.Sprintf("plan-%x.tfplan", uuid.New())
}
