package types

//-----------------------------------------------------------------------------
// BlockPhase enum type

// BlockPhase 一个区块在本节点上走到了哪一步
type BlockPhase uint8

// BlockPhase
const (
	PhaseNone         = BlockPhase(0x00)
	PhaseProposed     = BlockPhase(0x01) // 收到合法的pre-prepare，已经发出prepare
	PhasePrepared     = BlockPhase(0x02) // prepare达到quorum，已经发出commit
	PhaseCommitted    = BlockPhase(0x03) // commit达到quorum，区块已经上链
	PhaseRoundChanged = BlockPhase(0x04) // round-change达到quorum，交易已经清理
)

func (p BlockPhase) String() string {
	switch p {
	case PhaseNone:
		return "None"
	case PhaseProposed:
		return "Proposed"
	case PhasePrepared:
		return "Prepared"
	case PhaseCommitted:
		return "Committed"
	case PhaseRoundChanged:
		return "RoundChanged"
	default:
		return "Unknown"
	}
}

// PhaseTracker 记录每个区块hash的阶段，只能前进不能后退
// 只在coordinator的事件循环里使用，不加锁
type PhaseTracker struct {
	phases map[string]BlockPhase
}

func NewPhaseTracker() *PhaseTracker {
	return &PhaseTracker{phases: make(map[string]BlockPhase)}
}

func (pt *PhaseTracker) Get(key string) BlockPhase {
	return pt.phases[key]
}

// Advance 阶段前进到p，已经处于p或者更后面时返回false
func (pt *PhaseTracker) Advance(key string, p BlockPhase) bool {
	if pt.phases[key] >= p {
		return false
	}
	pt.phases[key] = p
	return true
}

func (pt *PhaseTracker) Delete(key string) {
	delete(pt.phases, key)
}

func (pt *PhaseTracker) Size() int {
	return len(pt.phases)
}
