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
	"encoding/json"
	"os"

	"github.com/icon-project/btp2/common/cli"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/srvx-project/srvx-sdk/api"
	"github.com/srvx-project/srvx-sdk/service"
)

func GetStringToInterface(fs *pflag.FlagSet, name string) (map[string]interface{}, error) {
	m, err := fs.GetStringToString(name)
	if err != nil {
		return nil, err
	}
	r := make(map[string]interface{})
	for k, v := range m {
		r[k] = v
	}
	return r, nil
}

func ReadAndUnmarshal(file string, v interface{}) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func ClientPersistentPreRunE(vc *viper.Viper, c *api.Client) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := cli.ValidateFlagsWithViper(vc, cmd.Flags()); err != nil {
			return err
		}
		l := log.GlobalLogger()
		if lv, err := log.ParseLevel(vc.GetString("log_level")); err != nil {
			return errors.Wrapf(err, "fail to parseLevel log_level err:%s", err.Error())
		} else {
			l.SetLevel(lv)
		}
		if lv, err := log.ParseLevel(vc.GetString("console_level")); err != nil {
			return errors.Wrapf(err, "fail to parseLevel console_level err:%s", err.Error())
		} else {
			l.SetConsoleLevel(lv)
		}
		dumpLogLevel, err := log.ParseLevel(vc.GetString("dump_log_level"))
		if err != nil {
			return errors.Wrapf(err, "fail to parseLevel dump_log_level err:%s", err.Error())
		} else {
			dumpLogLevel = api.EnsureDumpLogLevel(dumpLogLevel)
		}
		*c = *api.NewClient(
			vc.GetString("url"),
			dumpLogLevel,
			l)
		return nil
	}
}

func AddClientRequiredFlags(c *cobra.Command) {
	pFlags := c.PersistentFlags()
	pFlags.String("url", "http://localhost:8080", "server address")
	pFlags.String("log_level", "debug", "Global log level (trace,debug,info,warn,error,fatal,panic)")
	pFlags.String("console_level", "trace", "Console log level (trace,debug,info,warn,error,fatal,panic)")
	pFlags.String("dump_log_level", "trace", "client dump log level (trace,debug,info)")
}

func NewApiCommand(parentCmd *cobra.Command, parentVc *viper.Viper) (*cobra.Command, *viper.Viper) {
	rootCmd, rootVc := cli.NewCommand(parentCmd, parentVc, "api", "API cli")
	var (
		c api.Client
	)
	rootCmd.PersistentPreRunE = ClientPersistentPreRunE(rootVc, &c)
	AddClientRequiredFlags(rootCmd)
	cli.BindPFlags(rootVc, rootCmd.PersistentFlags())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "services",
		Short: "Get list of service information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.Services()
			if err != nil {
				return err
			}
			return cli.JsonPrettyPrintln(os.Stdout, r)
		},
	})

	callCmd := &cobra.Command{
		Use:   "call SERVICE METHOD",
		Short: "Call service method",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := &service.Descriptor{
				ServiceName:   args[0],
				ServiceMethod: args[1],
			}
			if raw := cmd.Flag("raw").Value.String(); len(raw) > 0 {
				if err := ReadAndUnmarshal(raw, &d.Args); err != nil {
					return err
				}
			}
			params, err := GetStringToInterface(cmd.Flags(), "param")
			if err != nil {
				return err
			}
			if len(params) > 0 {
				if d.Args == nil {
					d.Args = service.Params{}
				}
				for k, v := range params {
					d.Args[k] = v
				}
			}
			ret, err := c.InvokeDescriptor(d, cmd.Flag("trace_id").Value.String())
			if err != nil {
				return err
			}
			return cli.JsonPrettyPrintln(os.Stdout, ret)
		},
	}
	rootCmd.AddCommand(callCmd)
	callFlags := callCmd.Flags()
	callFlags.StringToString("param", nil,
		"key=value, Method arguments, if '--raw' used, will overwrite")
	callFlags.String("raw", "", "call with arguments using raw json file")
	callFlags.String("trace_id", "", "trace id to correlate server logs")

	assetsCmd := &cobra.Command{
		Use:   "assets ENTRY",
		Short: "Resolve assets for an entry",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ret, err := c.Assets(args[0])
			if err != nil {
				return err
			}
			return cli.JsonPrettyPrintln(os.Stdout, ret)
		},
	}
	rootCmd.AddCommand(assetsCmd)

	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "Get page of violation reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := cmd.Flags().GetUint("page")
			if err != nil {
				return err
			}
			size, err := cmd.Flags().GetUint("size")
			if err != nil {
				return err
			}
			ret, err := c.Reports(page, size, cmd.Flag("sort").Value.String())
			if err != nil {
				return err
			}
			return cli.JsonPrettyPrintln(os.Stdout, ret)
		},
	}
	rootCmd.AddCommand(reportsCmd)
	reportsFlags := reportsCmd.Flags()
	reportsFlags.Uint("page", 0, "page number")
	reportsFlags.Uint("size", 20, "page size")
	reportsFlags.String("sort", "id desc", "sort order")
	return rootCmd, rootVc
}
