package dispatch

import (
	"fmt"

	"github.com/cuongbtq/bulksend/internal/domain"
)

func skippedText(number string) string {
	return fmt.Sprintf("⚠️ Skipped %s", number)
}

func sentText(index, total int, number string) string {
	return fmt.Sprintf("✅ (%d/%d) Sent to %s", index, total, number)
}

func failedText(index, total int, number string, err error) string {
	return fmt.Sprintf("❌ (%d/%d) Failed to send to %s: %s", index, total, number, err)
}

func summaryText(c domain.Counters) string {
	return fmt.Sprintf("🎉 Done! ✅ Sent: %d, ⚠️ Skipped: %d, ❌ Failed: %d", c.Sent, c.Skipped, c.Failed)
}

func canceledText(c domain.Counters, total int) string {
	return fmt.Sprintf("🛑 Canceled after %d/%d. ✅ Sent: %d, ⚠️ Skipped: %d, ❌ Failed: %d",
		c.Done(), total, c.Sent, c.Skipped, c.Failed)
}

func failedJobText(err error) string {
	return fmt.Sprintf("❌ Job failed: %s", err)
}
