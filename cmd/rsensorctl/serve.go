package main

import (
	"github.com/danmuck/rsensor/internal/observability"
	"github.com/danmuck/rsensor/internal/service"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		listen  string
		admin   string
		noAdmin bool
		noRobot bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sensor server with the robot controller and admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Server.ListenAddr = listen
			}
			if flags.Changed("admin") {
				cfg.Admin.Addr = admin
			}
			if noAdmin {
				cfg.Admin.Enabled = false
			}
			if noRobot {
				cfg.Robot.Enabled = false
				cfg.Board.Enabled = false
			}
			applyLogging(cfg.Logging(), opts)
			observability.InitLogger("rsensorctl")

			svc, err := service.New(cfg)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&listen, "listen", "", "sensor protocol listen address (overrides server.listen_addr)")
	fs.StringVar(&admin, "admin", "", "admin HTTP address (overrides admin.addr)")
	fs.BoolVar(&noAdmin, "no-admin", false, "disable the admin HTTP surface")
	fs.BoolVar(&noRobot, "no-robot", false, "run without the robot controller")
	return cmd
}
