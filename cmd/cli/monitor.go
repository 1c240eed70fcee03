/*
 * Copyright 2024 SRVX Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"os"

	"github.com/icon-project/btp2/common/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/srvx-project/srvx-sdk/api"
	"github.com/srvx-project/srvx-sdk/report"
)

func NewMonitorCommand(parentCmd *cobra.Command, parentVc *viper.Viper) (*cobra.Command, *viper.Viper) {
	rootCmd, rootVc := cli.NewCommand(parentCmd, parentVc, "monitor", "Monitor cli")
	var (
		c api.Client
	)
	rootCmd.PersistentPreRunE = ClientPersistentPreRunE(rootVc, &c)
	AddClientRequiredFlags(rootCmd)
	cli.BindPFlags(rootVc, rootCmd.PersistentFlags())

	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "Violation report monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &api.MonitorRequest{
				Directive: cmd.Flag("directive").Value.String(),
			}
			ctx, cancel := context.WithCancel(context.Background())
			cli.OnInterrupt(cancel)
			return c.MonitorReports(ctx, req, func(v *report.Violation) error {
				return cli.JsonPrettyPrintln(os.Stdout, v)
			})
		},
	}
	rootCmd.AddCommand(reportsCmd)
	reportsFlags := reportsCmd.Flags()
	reportsFlags.String("directive", "", "only violations of this directive")
	return rootCmd, rootVc
}
