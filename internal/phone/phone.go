// Package phone normaliza números a E.164 antes de derivar fingerprints.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/dropDatabas3/phonepass/internal/apperr"
)

// Number es un teléfono validado.
type Number struct {
	E164 string
	// Region es el código ISO 3166-1 alpha-2 (ej: "AR"); vacío si no se pudo resolver.
	Region string
}

// Normalize parsea raw (con o sin '+') y devuelve el número en E.164.
// defaultRegion se usa para números sin prefijo internacional; puede ser "".
func Normalize(raw, defaultRegion string) (Number, error) {
	const op = "phone.normalize"
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Number{}, apperr.New(apperr.KindValidationFailed, op, "phone is required")
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(defaultRegion))
	if err != nil {
		return Number{}, apperr.Wrap(err, apperr.KindValidationFailed, op, "phone is not parseable")
	}
	if !phonenumbers.IsValidNumber(num) {
		return Number{}, apperr.New(apperr.KindValidationFailed, op, "phone is not a valid number")
	}
	return Number{
		E164:   phonenumbers.Format(num, phonenumbers.E164),
		Region: phonenumbers.GetRegionCodeForNumber(num),
	}, nil
}
