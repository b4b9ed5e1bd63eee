package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"homework-planner/backend/internal/planview"
)

func main() {
	var (
		baseURL     = flag.String("api", envOr("PLANNER_API", "http://localhost:8080"), "API 地址")
		token       = flag.String("token", os.Getenv("PLANNER_TOKEN"), "Access Token")
		upstream    = flag.String("upstream-token", os.Getenv("PLANNER_UPSTREAM_TOKEN"), "上游平台 Token")
		studentID   = flag.Int64("student", 0, "学生 ID")
		institution = flag.String("institution", "", "学校标识（可选）")
		timeout     = flag.Duration("timeout", 30*time.Second, "请求超时")
	)
	flag.Parse()

	if *studentID <= 0 {
		fmt.Fprintln(os.Stderr, "error: 必须指定 -student")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := &planview.Client{BaseURL: *baseURL, AccessToken: *token, UpstreamToken: *upstream}

	avail, err := client.Availability(ctx, *studentID, *institution)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	ws, err := client.Worksheet(ctx, *studentID, *institution)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(planview.RenderAvailability(&avail.Data))
	fmt.Print(planview.RenderWorksheet(&ws.Data, ws.Degraded, ws.Details))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
