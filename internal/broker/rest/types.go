package rest

import "strconv"

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"message"`
}

type APIError struct {
	Code int
	Msg  string
}

func (e APIError) Error() string {
	return "broker api error " + strconv.Itoa(e.Code) + ": " + e.Msg
}

type positionsResponse struct {
	Positions []positionResponse `json:"positions"`
}

type positionResponse struct {
	Symbol string `json:"symbol"`
	// Quantity is a pointer so an upstream response that omits the field is
	// distinguishable from a flat position.
	Quantity *int64 `json:"quantity"`
}

type ordersResponse struct {
	Orders []orderResponse `json:"orders"`
}

type orderResponse struct {
	OrderID         int64  `json:"orderId"`
	ClientOrderID   string `json:"clientOrderId"`
	Symbol          string `json:"symbol"`
	Side            string `json:"side"`
	LimitPrice      string `json:"limitPrice"`
	OrderedQuantity int64  `json:"orderedQuantity"`
	FilledQuantity  int64  `json:"filledQuantity"`
	Status          string `json:"status"`
}

type placeOrderRequest struct {
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	OrderType     string `json:"orderType"`
	LimitPrice    string `json:"limitPrice"`
	Quantity      int64  `json:"quantity"`
}
