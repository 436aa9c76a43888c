package persidict

import "context"

// TransformFunc receives the current value (Real or Absent) and returns
// the next value to write, or one of the joker commands. It must be
// effect-free except for its return value, since it is re-invoked on
// every retry.
type TransformFunc[V any] func(current ValueSlot[V]) InputSlot[V]

// TransformEngine implements transform(key, transformer, n_retries): a
// read-modify-write loop that composes GetItemIf and SetItemIf/DiscardIf.
// Its atomicity equals the wrapped dict's conditional-op atomicity.
type TransformEngine[V any] struct {
	dict PersiDict[V]
}

func NewTransformEngine[V any](d PersiDict[V]) *TransformEngine[V] {
	return &TransformEngine[V]{dict: d}
}

// Transform runs the retry loop. nRetries < 0 means unbounded.
func (e *TransformEngine[V]) Transform(ctx context.Context, key SafeKey, transformer TransformFunc[V], nRetries int) (OperationResult[V], error) {
	unbounded := nRetries < 0
	attempts := 0
	for {
		attempts++

		r, err := e.dict.GetItemIf(ctx, key, ItemNotAvailable, AnyEtag, AlwaysRetrieve)
		if err != nil {
			return OperationResult[V]{}, err
		}

		out := transformer(r.NewValue)

		var cr ConditionalResult[V]
		switch {
		case out.IsKeepCurrent():
			cr = ConditionalResult[V]{
				ConditionWasSatisfied: true,
				ActualEtag:            r.ActualEtag,
				ResultingEtag:         r.ActualEtag,
				NewValue:              r.NewValue,
			}
		case out.IsDeleteCurrent():
			cr, err = e.dict.DiscardIf(ctx, key, r.ActualEtag, EtagIsTheSame)
		default:
			v, _ := out.Value()
			cr, err = e.dict.SetItemIf(ctx, key, RealInput(v), r.ActualEtag, EtagIsTheSame, AlwaysRetrieve)
		}
		if err != nil {
			return OperationResult[V]{}, err
		}

		if cr.ConditionWasSatisfied {
			return OperationResult[V]{ResultingEtag: cr.ResultingEtag, NewValue: cr.NewValue}, nil
		}

		if !unbounded && attempts >= nRetries {
			return OperationResult[V]{}, &ConcurrencyConflictError{Key: key, Attempts: attempts}
		}
	}
}
