package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The Valoran calendar counts years from a fixed base: real year 2000
// is Valoran year 1. Years below 10 render zero padded ("09").
const valoranBaseYear = 2000

const valoranEraPrefix = "瓦罗兰历"

var customTimePattern = regexp.MustCompile(`^\d{2,4}-\d{2}-\d{2} \d{2}:\d{2}$`)

// FormatValoranTime renders the display timestamp for a post or reply.
// A non-empty custom time wins over the real creation time: a bare
// "YY-MM-DD HH:mm" date gets the era prefix, text already carrying an
// era marker passes through untouched, and anything else is prefixed
// verbatim. Without a custom time the real timestamp is converted into
// the Valoran calendar.
func FormatValoranTime(createdAt time.Time, customTime *string) string {
	if customTime != nil {
		if ct := strings.TrimSpace(*customTime); ct != "" {
			return formatCustomTime(ct)
		}
	}

	year := createdAt.Year() - valoranBaseYear + 1
	return fmt.Sprintf("%s %s-%02d-%02d %02d:%02d",
		valoranEraPrefix, formatValoranYear(year),
		int(createdAt.Month()), createdAt.Day(),
		createdAt.Hour(), createdAt.Minute())
}

func formatCustomTime(ct string) string {
	if customTimePattern.MatchString(ct) {
		parts := strings.SplitN(ct, " ", 2)
		date := strings.SplitN(parts[0], "-", 3)
		year, _ := strconv.Atoi(date[0])
		return fmt.Sprintf("%s %s-%s-%s %s",
			valoranEraPrefix, formatValoranYear(year), date[1], date[2], parts[1])
	}
	if strings.Contains(ct, "瓦罗兰历") || strings.Contains(ct, "瓦罗兰纪元") || strings.Contains(ct, "AN") {
		return ct
	}
	return valoranEraPrefix + " " + ct
}

func formatValoranYear(year int) string {
	if year >= 0 && year < 10 {
		return fmt.Sprintf("%02d", year)
	}
	return strconv.Itoa(year)
}
