package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/boost-marketplace/internal/catalog"
	"github.com/boost-marketplace/internal/config"
	"github.com/boost-marketplace/internal/domain"
	"github.com/boost-marketplace/internal/kafka"
	"github.com/boost-marketplace/internal/pricing"
)

var urgencies = []domain.Urgency{domain.UrgencyNormal, domain.UrgencyFast, domain.UrgencyExpress}

// simulator walks synthetic orders through their lifecycle
type simulator struct {
	catalog   *catalog.Catalog
	engine    *pricing.Engine
	customers int
	boosters  int
	open      []domain.BoostOrder
}

// next returns the next event: a new order, or a transition of an open one.
func (s *simulator) next(now time.Time) domain.OrderEvent {
	if len(s.open) == 0 || rand.Intn(100) < 40 {
		return s.create(now)
	}

	i := rand.Intn(len(s.open))
	o := s.open[i]
	var actor string
	switch o.Status {
	case domain.OrderStatusPending:
		if rand.Intn(10) == 0 {
			o.Status = domain.OrderStatusCancelled
			actor = o.UserID
		} else {
			o.Status = domain.OrderStatusInProgress
			o.BoosterID = fmt.Sprintf("booster-%d", rand.Intn(s.boosters)+1)
			actor = o.BoosterID
		}
	default:
		o.Status = domain.OrderStatusCompleted
		actor = o.BoosterID
	}
	o.UpdatedAt = now

	if o.Status == domain.OrderStatusInProgress {
		s.open[i] = o
	} else {
		s.open = append(s.open[:i], s.open[i+1:]...)
	}
	return domain.OrderEvent{Type: domain.OrderEventUpdated, Order: o, ActorID: actor, Timestamp: now}
}

func (s *simulator) create(now time.Time) domain.OrderEvent {
	games := s.catalog.Games()
	game := games[rand.Intn(len(games))].ID
	ranks := s.catalog.Ranks(game)
	from := rand.Intn(len(ranks) - 1)
	to := from + 1 + rand.Intn(len(ranks)-from-1)
	urgency := urgencies[rand.Intn(len(urgencies))]

	o := domain.BoostOrder{
		ID:          uuid.NewString(),
		UserID:      fmt.Sprintf("customer-%d", rand.Intn(s.customers)+1),
		Game:        game,
		CurrentRank: ranks[from].ID,
		DesiredRank: ranks[to].ID,
		Urgency:     urgency,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.Price = s.engine.Price(game, o.CurrentRank, o.DesiredRank, urgency)
	o.Budget = float64(o.Price)
	s.open = append(s.open, o)
	return domain.OrderEvent{Type: domain.OrderEventCreated, Order: o, ActorID: o.UserID, Timestamp: now}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "boost-order-events", "Kafka topic")
	customers := flag.Int("customers", 50, "Number of synthetic customers")
	boosters := flag.Int("boosters", 10, "Number of synthetic boosters")
	eventsPerSecond := flag.Int("rate", 5, "Events per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	if *eventsPerSecond <= 0 || *customers <= 0 || *boosters <= 0 {
		log.Fatal("rate, customers and boosters must be positive")
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🚀 Boost Order Event Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Customers:        %d\n", *customers)
	fmt.Printf("  Boosters:         %d\n", *boosters)
	fmt.Printf("  Events/sec:       %d\n", *eventsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	kafkaCfg := config.DefaultConfig().Kafka
	kafkaCfg.Brokers = strings.Split(*brokers, ",")
	kafkaCfg.Topic = *topic

	// Create producer
	producer, err := sarama.NewAsyncProducer(kafkaCfg.Brokers, kafka.NewSaramaConfig(&kafkaCfg))
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	cat := catalog.Default()
	sim := &simulator{
		catalog:   cat,
		engine:    pricing.NewEngine(cat),
		customers: *customers,
		boosters:  *boosters,
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ticker := time.NewTicker(time.Second / time.Duration(*eventsPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var created, updated int64

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case now := <-ticker.C:
			if *duration > 0 && now.After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			event := sim.next(now.UTC())
			msg, err := kafka.EncodeEvent(kafkaCfg.Topic, event)
			if err != nil {
				log.Printf("Failed to encode event: %v", err)
				continue
			}
			producer.Input() <- msg

			if event.Type == domain.OrderEventCreated {
				created++
			} else {
				updated++
			}

		case <-statsTicker.C:
			fmt.Printf("[%s] Created: %d | Updated: %d | Open: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				created,
				updated,
				len(sim.open),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
