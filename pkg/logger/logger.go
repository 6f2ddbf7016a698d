package logger

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New は JSON 形式で w に出力する zap ロガーを生成します。
// verbose が true の場合、level の指定にかかわらず Debug レベルでコンソール形式で出力します。
func New(w io.Writer, level string, verbose bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("不明なログレベルです: %q: %w", level, err)
		}
		lvl = parsed
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}

	var enc zapcore.Encoder
	if verbose {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.MessageKey = "message"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

// Init はロガーを生成し、zap.L() で参照されるグローバルロガーとして登録します。
// 戻り値の関数で元のグローバルロガーに戻します。
func Init(w io.Writer, level string, verbose bool) (*zap.Logger, func(), error) {
	l, err := New(w, level, verbose)
	if err != nil {
		return nil, nil, err
	}
	restore := zap.ReplaceGlobals(l)
	return l, restore, nil
}
