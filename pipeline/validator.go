package pipeline

// Validator 聚合交易校验器
// 拦截违反结构不变量的聚合结果：被拒绝的交易不入库，
// 只计数并作为数据质量信号上报，不影响同步运行本身
type Validator struct{}

// NewValidator 创建校验器
func NewValidator() *Validator {
	return &Validator{}
}

// Validate 校验一笔聚合交易
func (v *Validator) Validate(trade *AggregatedTrade) ValidationOutcome {
	outcome := ValidationOutcome{Trade: trade, Status: ValidationValid}

	if trade == nil {
		outcome.Status = ValidationRejected
		outcome.Reasons = append(outcome.Reasons, "trade is nil")
		return outcome
	}

	if len(trade.SourceEventIDs) == 0 {
		outcome.Reasons = append(outcome.Reasons, "empty source event set")
	}

	if trade.ClosedAt.Before(trade.OpenedAt) {
		outcome.Reasons = append(outcome.Reasons, "closedAt before openedAt")
	}

	// 含成交的交易必须有正的价格与数量
	// 纯资金流水调整记录（flat）没有成交，不适用价格/数量规则
	if trade.Direction != DirectionFlat {
		if trade.EntryPrice.Sign() <= 0 {
			outcome.Reasons = append(outcome.Reasons, "non-positive entry price")
		}
		if trade.ExitPrice.Sign() <= 0 {
			outcome.Reasons = append(outcome.Reasons, "non-positive exit price")
		}
		if trade.TotalQuantity.Sign() <= 0 {
			outcome.Reasons = append(outcome.Reasons, "non-positive quantity")
		}
	}

	if len(outcome.Reasons) > 0 {
		outcome.Status = ValidationRejected
	}

	return outcome
}
