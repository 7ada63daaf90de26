package encoding

import (
	"fmt"
	"strings"
	"time"
)

// ProgressMessage renders a one-line encode progress summary.
func ProgressMessage(pass, passes int, percent, fps float64, eta time.Duration) string {
	if percent < 0 {
		return ""
	}
	base := fmt.Sprintf("Encoding %.1f%%", percent)
	if passes > 1 && pass > 0 {
		base = fmt.Sprintf("Pass %d/%d %.1f%%", pass, passes, percent)
	}
	extras := make([]string, 0, 2)
	if eta > 0 {
		if formatted := FormatETA(eta); formatted != "" {
			extras = append(extras, fmt.Sprintf("ETA %s", formatted))
		}
	}
	if fps > 0 {
		extras = append(extras, fmt.Sprintf("%.1f fps", fps))
	}
	if len(extras) == 0 {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(extras, ", "))
}

// FormatETA renders d as a compact "1h2m3s" string.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, "")
}
