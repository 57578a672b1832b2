package mocks

//go:generate mockgen -destination=./mock_store.go -package=mocks github.com/rxtech-lab/argo-perp/internal/store Store
//go:generate mockgen -destination=./mock_broker.go -package=mocks github.com/rxtech-lab/argo-perp/internal/broker Broker
