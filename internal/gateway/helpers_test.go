package gateway

import (
	"github.com/sony/gobreaker/v2"

	"github.com/flemzord/toolgate/internal/agent"
	"github.com/flemzord/toolgate/internal/approval"
)

type fakeController struct {
	state   agent.State
	pending map[string]approval.Decision
}

func (f *fakeController) State() agent.State { return f.state }

func (f *fakeController) Pending(threadID string) approval.Decision {
	return f.pending[threadID]
}

type fakeCatalogue int

func (c fakeCatalogue) Len() int { return int(c) }

type fakeCircuit gobreaker.State

func (c fakeCircuit) State() gobreaker.State { return gobreaker.State(c) }
