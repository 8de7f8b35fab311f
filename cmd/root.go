package cmd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jsbridge/jsbridge/api"
	"github.com/jsbridge/jsbridge/internal/logging"
	"github.com/jsbridge/jsbridge/internal/sessions"
)

var (
	// Used for flags.
	cfgFile        string
	listenAddr     string
	listenPort     int
	serverKeyFile  string
	serverCertFile string
	caCertFiles    []string
	pollWindow     time.Duration
	evalTimeout    time.Duration
	maxSessions    int
	sessionIdleMax time.Duration
	sessionSweep   time.Duration
	logDirPath     string
	logFileName    string
	logFileSizeMax int
	logFilesAgeMax int
	logFilesMax    int
	logCompress    bool

	rootCmd = &cobra.Command{
		Use:   "jsbridge",
		Short: "Web server bridging server-side code and live browser pages",
		Long:  `Web server bridging server-side code and live browser pages`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return webServer()
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cobra.yaml)")
	rootCmd.Flags().StringVar(&listenAddr, "addr", "localhost", "network interface to listen on")
	rootCmd.Flags().IntVar(&listenPort, "port", 8080, "port to listen on")
	rootCmd.Flags().StringVar(&serverKeyFile, "tls.key", "", "path to server TLS key")
	rootCmd.Flags().StringVar(&serverCertFile, "tls.cert", "", "paths to server TLS certificates")
	rootCmd.Flags().StringSliceVar(&caCertFiles, "tls.cacerts", []string{}, "comma-separated list of paths to and CAs TLS certificates")
	rootCmd.Flags().DurationVar(&pollWindow, "poll.window", 5*time.Second, "how long an empty browser poll is held open")
	rootCmd.Flags().DurationVar(&evalTimeout, "eval.timeout", 10*time.Second, "how long a browser evaluation may take before it fails")
	rootCmd.Flags().IntVar(&maxSessions, "session.max", 5000, "maximum number of page sessions to allow")
	rootCmd.Flags().DurationVar(&sessionIdleMax, "session.idle.max", time.Minute, "inactivity threshold after which a session expires")
	rootCmd.Flags().DurationVar(&sessionSweep, "session.sweep.every", 5*time.Second, "how often to sweep for idle sessions")
	rootCmd.Flags().StringVar(&logDirPath, "log.dir.path", "./logs", "directory path to store logs data")
	rootCmd.Flags().StringVar(&logFileName, "log.file.name", "jsbridge.log", "name of the log file")
	rootCmd.Flags().IntVar(&logFileSizeMax, "log.file.size.max", 100, "maximum size of log file in mega bytes to allow")
	rootCmd.Flags().IntVar(&logFilesAgeMax, "log.file.age.max", 28, "maximum age in days a log file can persist in system")
	rootCmd.Flags().IntVar(&logFilesMax, "log.max.backup", 5, "maximum number of log files that can persist")
	rootCmd.Flags().BoolVar(&logCompress, "log.compress", false, "whether to compress historical log files or not")
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".cobra" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".cobra")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func webServer() error {
	logging.SetupLogger(logging.Config{
		DirPath:     logDirPath,
		FileName:    logFileName,
		FileSizeMax: logFileSizeMax,
		FilesAgeMax: logFilesAgeMax,
		FilesMax:    logFilesMax,
		Compress:    logCompress,
	})

	cache, err := sessions.NewCache(sessions.Config{
		MaxSessions: maxSessions,
		PollWindow:  pollWindow,
		EvalTimeout: evalTimeout,
		IdleMax:     sessionIdleMax,
		SweepEvery:  sessionSweep,
		Factory:     clockApp,
	})
	if err != nil {
		return err
	}
	defer cache.Stop()

	handlers := api.NewHandler(api.Services{
		StoreSession: cache,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", listenAddr, listenPort),
		Handler:           handlers,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 1 * time.Minute,
	}

	if serverCertFile != "" && serverKeyFile != "" {
		certPool := x509.NewCertPool()
		for _, caCertFile := range caCertFiles {
			caCert, err := os.ReadFile(caCertFile)
			if err != nil {
				log.Printf("Reading server certificate: %v", err)
				return err
			}
			certPool.AppendCertsFromPEM(caCert)
		}
		srv.TLSConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		_ = srv.Shutdown(context.Background())
	}()

	if srv.TLSConfig != nil {
		err = srv.ListenAndServeTLS(serverCertFile, serverKeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		log.Printf("Running server problem: %v", err)
		return err
	}
	return nil
}
