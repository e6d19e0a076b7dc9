package viztrail

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ModuleField is a log field describing a module.
func ModuleField(m *Module) zap.Field {
	return zap.Object("module", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("id", m.ID)
		enc.AddString("command", m.Command.Name())
		enc.AddString("state", m.State().String())
		return nil
	}))
}

// WorkflowField is a log field describing a workflow version.
func WorkflowField(wf *Workflow) zap.Field {
	if wf == nil {
		return zap.Skip()
	}
	return zap.Object("workflow", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("id", wf.ID())
		enc.AddString("action", string(wf.Descriptor.Action))
		enc.AddInt("modules", wf.Len())
		enc.AddString("state", wf.State().String())
		return nil
	}))
}
