package utils

import "strconv"

// FormatAmount renders a minor-unit amount with thousands separators for
// invoices and letters, e.g. 450000 -> "450,000".
func FormatAmount(amount int64) string {
	str := strconv.FormatInt(amount, 10)
	negative := false
	if len(str) > 0 && str[0] == '-' {
		negative = true
		str = str[1:]
	}

	var out []byte
	for i, ch := range []byte(str) {
		if i > 0 && (len(str)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, ch)
	}

	if negative {
		return "-" + string(out)
	}
	return string(out)
}
