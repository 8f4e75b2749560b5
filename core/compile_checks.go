package core

var (
	_ BridgeService   = (*Service)(nil)
	_ StateStore      = (*MemoryStateStore)(nil)
	_ MetricsRecorder = NopMetricsRecorder{}
	_ UpgradeHook     = UpgradeHookFunc(nil)
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}
	_ RawConfigLoader = StaticConfigLoader{}
)
