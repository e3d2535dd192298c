package jwtkit

import (
	"fmt"
	"strings"

	"github.com/fgrzl/claims"
	"github.com/golang-jwt/jwt/v5"
)

func NewClaimsPrincipal(raw jwt.MapClaims) claims.Principal {
	claimList := make(claims.ClaimList, 0, len(raw))

	for k, v := range raw {
		switch val := v.(type) {
		case string:
			claimList = claimList.Add(k, val)
		case float64:
			claimList = claimList.Add(k, fmt.Sprintf("%v", val))
		case []interface{}:
			strs := make([]string, 0, len(val))
			for _, item := range val {
				strs = append(strs, fmt.Sprint(item))
			}
			claimList = claimList.Add(k, strings.Join(strs, ","))
		case interface{}:
			claimList = claimList.Add(k, fmt.Sprint(val))
		default:
			// unknown type, skip
		}
	}

	p := claims.NewPrincipalFromList(claimList)
	return p
}
