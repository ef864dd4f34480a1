package dto

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var assetCodeRe = regexp.MustCompile(`^[A-Z]{2,10}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("asset_code", validateAssetCode)
		_ = v.RegisterValidation("decimal_amount", validateDecimalAmount)
	}
}

// validateAssetCode accepts upper-case asset codes like BTC, ETH, USDT.
func validateAssetCode(fl validator.FieldLevel) bool {
	return assetCodeRe.MatchString(fl.Field().String())
}

// validateDecimalAmount accepts positive decimal strings. Amounts travel as
// strings end to end; floats never enter the pipeline.
func validateDecimalAmount(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && d.IsPositive()
}
