package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config yaml")
	orderNumber := flag.String("order", "", "order number to track, e.g. ORD-1042")
	asJSON := flag.Bool("json", false, "print the raw order as JSON")
	timeout := flag.Duration("timeout", 15*time.Second, "overall request timeout")
	flag.Parse()

	if *orderNumber == "" {
		log.Fatalf("-order is required")
	}
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	clients, err := apiclient.NewFactory(apiclient.Options{
		BaseURL:        cfg.Backend.BaseURL,
		Timeout:        cfg.Backend.Timeout.Duration,
		CSRFCookieName: cfg.Backend.CSRFCookieName,
		CSRFHeaderName: cfg.Backend.CSRFHeaderName,
	})
	if err != nil {
		log.Fatalf("backend client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	order, err := clients.NewClient().TrackOrder(ctx, *orderNumber)
	if apiclient.StatusOf(err) == http.StatusNotFound {
		fmt.Printf("order %s not found\n", *orderNumber)
		cancel()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("track order: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(order); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	fmt.Printf("Order %s\n", order.OrderNumber)
	fmt.Printf("  status:  %s", order.Status)
	if order.Status.Terminal() {
		fmt.Print(" (final)")
	}
	fmt.Println()
	fmt.Printf("  total:   %s\n", order.TotalAmount)
	fmt.Printf("  placed:  %s\n", order.CreatedAt.Format(time.RFC1123))
	for _, item := range order.Items {
		fmt.Printf("  - %d x %s @ %s\n", item.Quantity, item.Product.Name, item.Price)
	}
}
