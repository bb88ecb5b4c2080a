package logger

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 统一的日志字段键名

func AssetPair(id string) zap.Field { return zap.String("asset_pair", id) }

// LadderLevel 档位名。键不能用 "level"，JSON 编码器已用它输出日志级别。
func LadderLevel(name string) zap.Field { return zap.String("ladder_level", name) }

func Wallet(id string) zap.Field { return zap.String("wallet", id) }

func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Decimal 以字符串输出，保留全部精度
func Decimal(key string, v decimal.Decimal) zap.Field { return zap.Stringer(key, v) }
