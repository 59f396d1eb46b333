package notifier

import (
	"fmt"
	"strings"

	"github.com/abelzeko/river-alert/internal/detector"
	"github.com/abelzeko/river-alert/internal/entities"
)

// Format renders the alert text for a reading and the decision that triggered it
func Format(r entities.Reading, d detector.Decision) string {
	var b strings.Builder

	name := r.StationName
	if name == "" {
		name = r.StationID
	}
	fmt.Fprintf(&b, "🌊 สถานี %s\n", name)
	fmt.Fprintf(&b, "• ระดับน้ำ: %.2f ม.\n", r.WaterLevelM)
	if r.BankLevelM != nil {
		fmt.Fprintf(&b, "• ระดับตลิ่ง: %.2f ม.\n", *r.BankLevelM)
	} else {
		b.WriteString("• ระดับตลิ่ง: ไม่มีข้อมูล\n")
	}
	if r.StatusText != "" {
		fmt.Fprintf(&b, "• สถานะ: %s (%s)\n", r.StatusText, r.Status)
	} else {
		fmt.Fprintf(&b, "• สถานะ: %s\n", r.Status)
	}
	if r.DistanceToBankM != nil {
		if dist := *r.DistanceToBankM; dist < 0 {
			fmt.Fprintf(&b, "• ⚠️ สูงกว่าตลิ่ง: %.2f ม.\n", -dist)
		} else {
			fmt.Fprintf(&b, "• ห่างจากตลิ่ง: %.2f ม.\n", dist)
		}
	}
	fmt.Fprintf(&b, "🕒 รายงานเวลา: %s", r.ObservedAt.Format("02/01/2006 15:04"))

	if len(d.Reasons) > 0 {
		fmt.Fprintf(&b, "\n📌 %s", strings.Join(d.Reasons, ", "))
	}
	return b.String()
}
