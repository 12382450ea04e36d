// этот код не зависит от приложения,
// и нужен только для ручной проверки приёма заказов из checkout через кафку
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

func main() {
	brokerAddress := flag.String("broker", "localhost:9092", "kafka broker address")
	topic := flag.String("topic", "orders", "orders topic")
	number := flag.String("number", fmt.Sprintf("ORD-%d", time.Now().Unix()), "order number")
	flag.Parse()

	// заказ в том виде, в каком его присылает checkout
	message := fmt.Sprintf(`{
           "order_number": %q,
           "customer_name": "Anna Petrova",
           "customer_phone": "+7 (900) 123-45-67",
           "status": "pending",
           "total_price": 139.8,
           "shipping_address": "Lenina st, 1, Moscow",
           "notes": "call before delivery",
           "created_at": %q,
           "order_items": [
             { "product_id": 1, "product_name": "Linen shirt", "product_color": "white", "product_sku": "LS-WHT-M", "size": "M", "quantity": 2, "unit_price": 49.9, "discount": 0, "subtotal": 99.8 },
             { "product_id": 3, "product_name": "Canvas belt", "product_color": "black", "size": "ONE", "quantity": 1, "unit_price": 50, "discount": 20, "subtotal": 40 }
           ]
        }`, *number, time.Now().UTC().Format(time.RFC3339))

	writer := &kafka.Writer{
		Addr:     kafka.TCP(*brokerAddress),
		Topic:    *topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer writer.Close()

	log.Printf("Sending order %s to Kafka...", *number)
	err := writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(*number),
			Value: []byte(message),
		},
	)
	if err != nil {
		log.Fatalf("Failed to write message: %v", err)
	}
	fmt.Println("Message sent successfully!")
}
