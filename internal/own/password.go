package own

import (
	"fmt"
	"strconv"
)

// OpenPassword computes the reply to a gateway nonce using the classic
// numeric OPEN password algorithm.
//
// Each nonce digit selects a bit rotation or mask applied to the running
// value, seeded with the numeric password at the first non-zero digit.
//
// Returns ErrAuthFailed if the password is not numeric or the nonce contains
// non-digit characters.
func OpenPassword(password, nonce string) (uint32, error) {
	pass, err := strconv.ParseUint(password, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: password must be numeric", ErrAuthFailed)
	}
	if !isDigits(nonce) {
		return 0, fmt.Errorf("%w: invalid nonce %q", ErrAuthFailed, nonce)
	}

	var num1, num2 uint32
	started := false

	for _, c := range nonce {
		if c != '0' && !started {
			num2 = uint32(pass)
			started = true
		}

		switch c {
		case '1':
			num1 = (num2 & 0xFFFFFF80) >> 7
			num2 <<= 25
		case '2':
			num1 = (num2 & 0xFFFFFFF0) >> 4
			num2 <<= 28
		case '3':
			num1 = (num2 & 0xFFFFFFF8) >> 3
			num2 <<= 29
		case '4':
			num1 = num2 << 1
			num2 >>= 31
		case '5':
			num1 = num2 << 5
			num2 >>= 27
		case '6':
			num1 = num2 << 12
			num2 >>= 20
		case '7':
			num1 = num2&0x0000FF00 | (num2&0x000000FF)<<24 | (num2&0x00FF0000)>>16
			num2 = (num2 & 0xFF000000) >> 8
		case '8':
			num1 = (num2&0x0000FFFF)<<16 | num2>>24
			num2 = (num2 & 0x00FF0000) >> 8
		case '9':
			num1 = ^num2
		default:
			num1 = num2
		}

		if c != '0' && c != '9' {
			num1 |= num2
		}
		num2 = num1
	}

	return num1, nil
}
