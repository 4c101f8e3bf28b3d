package classifiers

import "strconv"

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
