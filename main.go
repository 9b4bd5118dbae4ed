package main

import (
	"fmt"
	"os"
	"paybox/config"
	"paybox/entity"
	"paybox/internal"
	"paybox/services"

	"github.com/joho/godotenv"
	"github.com/mailru/easyjson"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	rootCmd := &cobra.Command{
		Use:   "paybox",
		Short: "PayBox payment gateway service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "config.yml", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(signCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the payment http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath)
		},
	}
}

func signCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Print pg_sig of a JSON request file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.GetConfig(*configPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var params entity.Params
			if err = easyjson.Unmarshal(data, &params); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			endpoint, _ := cmd.Flags().GetString("endpoint")
			signer := internal.NewSigner(conf.MerchantConfig())
			fmt.Println(signer.Sign(endpoint, params.Without("pg_sig")))
			return nil
		},
	}
	cmd.Flags().StringP("endpoint", "e", "init_payment.php", "script name the request is sent to")
	return cmd
}

func serve(configPath string) error {

	logger := internal.NewLogger("internal", false, nil)

	logger.Info("using config file: " + configPath)
	conf, err := config.GetConfig(configPath)
	if err != nil {
		logger.Error("boot", err)
		return err
	}
	merchant := conf.MerchantConfig()

	var database services.Database
	if conf.Mongo.Enabled {
		database, err = internal.NewMongoClient(conf)
		if err != nil {
			logger.Error("mongo client", err)
			return err
		}
		logger.Info("mongo client initialized")
	} else {
		return fmt.Errorf("mongo is required to reach orders and subscriptions")
	}

	signer := internal.NewSigner(merchant)
	signer.SetLogger(internal.NewLogger("signature", conf.IsDebug, database))

	gateway := internal.NewGateway(merchant, signer)
	gateway.SetLogger(internal.NewLogger("gateway", conf.IsDebug, database))

	hooks := internal.NewHooks()

	reconciler := internal.NewReconciler(merchant, signer, gateway, database)
	reconciler.SetLogger(internal.NewLogger("reconciler", conf.IsDebug, database))
	reconciler.SetMailer(internal.NewMailer(conf))
	reconciler.Register(hooks)

	if conf.Redis.Enabled {
		rdb, e := internal.NewRedisClient(conf)
		if e != nil {
			logger.Error("redis client", e)
			return e
		}
		defer func() {
			_ = rdb.Close()
		}()
		reconciler.SetDeliveryGuard(internal.NewDeliveryGuard(rdb, conf.Redis.TTL))
		logger.Info("redis delivery guard initialized")
	}

	payments := internal.NewPayments(merchant, signer, database)
	payments.SetLogger(internal.NewLogger("payments", conf.IsDebug, database))
	payments.SetGateway(gateway)
	payments.SetReconciler(reconciler)
	payments.SetHooks(hooks)

	server := internal.NewServer(conf)
	server.SetLogger(internal.NewLogger("server", conf.IsDebug, database))
	server.SetPaymentsService(payments)

	err = server.Start()
	if err != nil {
		logger.Error("server start", err)
		return err
	}
	return nil
}
