// fiscalgw: a gateway mediating REST/MQTT clients and a fleet of
// serial/LAN fiscal receipt printers and card-payment pinpads.
// Copyright (C) 2026  Guillermo Perry
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fiscalgw/internal/config"
	"fiscalgw/internal/fiscalsession"
	"fiscalgw/internal/jobqueue"
	"fiscalgw/internal/model"
	"fiscalgw/internal/mqttbridge"
	"fiscalgw/internal/pinpadsession"
	"fiscalgw/internal/store"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "gatewayd",
		Short: "Fiscal device gateway: mediates REST/MQTT apps and a fleet of fiscal printers and pinpads",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional config file (viper-readable: yaml, json, toml...)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway daemon: HTTP API, MQTT bridge, and job dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// isPinpadKind reports whether kind routes to the pinpad session instead of
// the fiscal printer session (spec.md §4.1 "Device kinds").
func isPinpadKind(kind model.PayloadKind) bool {
	switch kind {
	case model.PayloadPinpadPurchase, model.PayloadPinpadVoid, model.PayloadPinpadEndOfDay,
		model.PayloadPinpadTestConn, model.PayloadPinpadPing, model.PayloadPinpadInfo, model.PayloadPinpadStatus:
		return true
	}
	return false
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("gatewayd: %w", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("gatewayd: opening store: %w", err)
	}
	defer st.Close()
	log.AddHook(store.NewLogHook(st))

	fiscal := fiscalsession.New(log, fiscalsession.NewSeqStore())
	pinpad := pinpadsession.New(log)

	adapter := func(ctx context.Context, printer *model.Printer, kind model.PayloadKind, payload json.RawMessage) (interface{}, error) {
		if isPinpadKind(kind) {
			return pinpad.Run(ctx, printer, kind, payload)
		}
		dryRun := cfg.DryRun || printer.DryRun
		return fiscal.Run(ctx, printer, kind, payload, dryRun)
	}

	qcfg := jobqueue.DefaultConfig()
	qcfg.PollInterval = cfg.JobPollInterval
	qcfg.DefaultTimeout = cfg.JobTimeout
	qcfg.MaxRetries = cfg.MaxRetries
	queue := jobqueue.New(st, adapter, log, qcfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx)

	bridge := mqttbridge.New(cfg.MQTT, st, queue, log)
	if err := bridge.Start(); err != nil {
		log.WithError(err).Warn("mqtt bridge failed to connect at startup, will keep retrying in the background")
	}
	defer bridge.Stop()

	router := newRouter(st, queue, log)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("gatewayd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown error")
	}
	return nil
}

// createJobRequest is the REST ingress shape for POST /jobs (spec.md §4
// "Collaborator HTTP surface").
type createJobRequest struct {
	PrinterID string          `json:"printer_id"`
	Kind      string          `json:"payload_kind"`
	Payload   json.RawMessage `json:"payload"`
}

func newRouter(st *store.Store, queue *jobqueue.Queue, log *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/jobs", func(c *gin.Context) {
			var req createJobRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			if strings.TrimSpace(req.PrinterID) == "" || strings.TrimSpace(req.Kind) == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "printer_id and payload_kind are required"})
				return
			}
			job, err := queue.CreateJob(req.PrinterID, model.PayloadKind(req.Kind), req.Payload)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, job)
		})

		api.GET("/jobs/:id", func(c *gin.Context) {
			job, err := st.GetJob(c.Param("id"))
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
				return
			}
			c.JSON(http.StatusOK, job)
		})

		api.POST("/jobs/:id/cancel", func(c *gin.Context) {
			if err := queue.Cancel(c.Param("id")); err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
		})

		api.POST("/jobs/:id/retry", func(c *gin.Context) {
			if err := queue.Retry(c.Param("id")); err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "queued"})
		})

		api.GET("/printers", func(c *gin.Context) {
			printers, err := st.ListPrinters()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, printers)
		})

		api.PUT("/printers/:id", func(c *gin.Context) {
			var printer model.Printer
			if err := c.ShouldBindJSON(&printer); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			printer.ID = c.Param("id")
			now := time.Now()
			if existing, err := st.GetPrinter(printer.ID); err == nil {
				printer.CreatedAt = existing.CreatedAt
			} else {
				printer.CreatedAt = now
			}
			printer.UpdatedAt = now
			if err := st.PutPrinter(&printer); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, printer)
		})

		api.GET("/printers/:id/jobs", func(c *gin.Context) {
			jobs, err := st.ListJobsByPrinter(c.Param("id"))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, jobs)
		})

		api.GET("/logs", func(c *gin.Context) {
			logs, err := st.ListLogs()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, logs)
		})
	}

	return router
}
