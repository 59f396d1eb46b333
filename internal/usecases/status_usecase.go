package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/abelzeko/river-alert/internal/normalize"
	"github.com/abelzeko/river-alert/internal/repository"
	"github.com/rs/zerolog/log"
)

// HistoryReader is implemented by stores that keep past readings
type HistoryReader interface {
	GetHistory(ctx context.Context, limit int) ([]entities.StoredState, error)
}

// StatusUseCase answers questions about the last stored reading
type StatusUseCase struct {
	store   repository.StateStore
	history HistoryReader
}

// NewStatusUseCase creates a status use case. History is available when
// the store also implements HistoryReader.
func NewStatusUseCase(store repository.StateStore) *StatusUseCase {
	uc := &StatusUseCase{store: store}
	if h, ok := store.(HistoryReader); ok {
		uc.history = h
	}
	return uc
}

// HasHistory reports whether GetHistory is supported
func (uc *StatusUseCase) HasHistory() bool {
	return uc.history != nil
}

// GetLatest returns the last stored state, or nil when nothing was stored yet
func (uc *StatusUseCase) GetLatest(ctx context.Context) (*entities.StoredState, error) {
	log.Debug().Msg("Retrieving latest stored reading")
	return uc.store.Load(ctx)
}

// GetHistory returns up to limit past readings, newest first
func (uc *StatusUseCase) GetHistory(ctx context.Context, limit int) ([]entities.StoredState, error) {
	if uc.history == nil {
		return nil, fmt.Errorf("history is not available with this state backend")
	}
	log.Debug().Int("limit", limit).Msg("Retrieving reading history")
	return uc.history.GetHistory(ctx, limit)
}

// FormatStatus formats a stored state for display
func (uc *StatusUseCase) FormatStatus(st *entities.StoredState) string {
	if st == nil {
		return "ยังไม่มีข้อมูลระดับน้ำ"
	}

	var b strings.Builder
	name := st.StationName
	if name == "" {
		name = st.StationID
	}
	fmt.Fprintf(&b, "📍 สถานี %s\n", name)
	fmt.Fprintf(&b, "💧 ระดับน้ำ: %.2f ม.\n", st.WaterLevelM)
	if st.BankLevelM != nil {
		fmt.Fprintf(&b, "🏞️ ระดับตลิ่ง: %.2f ม.\n", *st.BankLevelM)
		if dist := *st.BankLevelM - st.WaterLevelM; dist < 0 {
			fmt.Fprintf(&b, "⚠️ สูงกว่าตลิ่ง: %.2f ม.\n", -dist)
		} else {
			fmt.Fprintf(&b, "↕️ ห่างจากตลิ่ง: %.2f ม.\n", dist)
		}
	}
	if st.StatusText != "" {
		fmt.Fprintf(&b, "🚦 สถานะ: %s (%s)\n", st.StatusText, normalize.ClassifyStatus(st.StatusText))
	}
	fmt.Fprintf(&b, "🕒 รายงานเวลา: %s", st.ObservedAt.Format("02/01/2006 15:04"))
	if st.LastAlertAt != nil {
		fmt.Fprintf(&b, "\n🔔 แจ้งเตือนล่าสุด: %s", st.LastAlertAt.Format("02/01/2006 15:04"))
	}
	return b.String()
}

// FormatHistory formats past readings one per line, with the change from the
// previous entry.
func (uc *StatusUseCase) FormatHistory(states []entities.StoredState) string {
	if len(states) == 0 {
		return "ยังไม่มีประวัติระดับน้ำ"
	}

	var b strings.Builder
	b.WriteString("ประวัติระดับน้ำ:\n")
	for i, st := range states {
		fmt.Fprintf(&b, "\n%s  %.2f ม.", st.ObservedAt.Format("02/01 15:04"), st.WaterLevelM)
		// states are newest first, so the older neighbour is at i+1
		if i+1 < len(states) {
			fmt.Fprintf(&b, " (%+.2f)", st.WaterLevelM-states[i+1].WaterLevelM)
		}
	}
	return b.String()
}
