package service

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CommissionInput 佣金计算输入
type CommissionInput struct {
	Sequence          int
	IsActiveBuyer     bool
	Gross             decimal.Decimal
	TDSPercent        decimal.Decimal
	TDSThresholdPairs int
	ExtraPercent      decimal.Decimal
}

// CommissionBreakdown 佣金拆分结果
type CommissionBreakdown struct {
	Gross   decimal.Decimal
	Tax     decimal.Decimal
	Extra   decimal.Decimal
	Net     decimal.Decimal
	Blocked bool
}

// CalculateCommission 计算单笔配对佣金（纯函数）
// TDS 对每一笔都生效；超过阈值序号后追加额外扣款，非活跃买家冻结收益
func CalculateCommission(input CommissionInput) CommissionBreakdown {
	gross := input.Gross.Round(2)
	tax := percentOf(gross, input.TDSPercent)

	if input.Sequence <= input.TDSThresholdPairs {
		return CommissionBreakdown{
			Gross: gross,
			Tax:   tax,
			Extra: decimal.Zero,
			Net:   gross.Sub(tax).Round(2),
		}
	}

	extra := percentOf(gross, input.ExtraPercent)
	if !input.IsActiveBuyer {
		return CommissionBreakdown{
			Gross:   gross,
			Tax:     tax,
			Extra:   extra,
			Net:     decimal.Zero,
			Blocked: true,
		}
	}
	return CommissionBreakdown{
		Gross: gross,
		Tax:   tax,
		Extra: extra,
		Net:   gross.Sub(tax).Sub(extra).Round(2),
	}
}

// CalculateDirectCommission 计算直推佣金（只扣 TDS）
func CalculateDirectCommission(gross, tdsPercent decimal.Decimal) CommissionBreakdown {
	gross = gross.Round(2)
	tax := percentOf(gross, tdsPercent)
	return CommissionBreakdown{
		Gross: gross,
		Tax:   tax,
		Extra: decimal.Zero,
		Net:   gross.Sub(tax).Round(2),
	}
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred).Round(2)
}
