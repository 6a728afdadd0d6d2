package log

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPackageHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prevBase, prevLog := baseLogger, log
	defer func() { baseLogger, log = prevBase, prevLog }()
	baseLogger = zap.New(core)
	log = baseLogger.Sugar()

	Info("connecting")
	Warnf("%d gates failed", 3)
	Errorf("could not load %s", "stations.toml")

	want := []struct {
		level zapcore.Level
		msg   string
	}{
		{zapcore.InfoLevel, "connecting"},
		{zapcore.WarnLevel, "3 gates failed"},
		{zapcore.ErrorLevel, "could not load stations.toml"},
	}
	entries := logs.AllUntimed()
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Level != w.level || entries[i].Message != w.msg {
			t.Errorf("entry %d = %s %q, want %s %q", i, entries[i].Level, entries[i].Message, w.level, w.msg)
		}
	}
}
